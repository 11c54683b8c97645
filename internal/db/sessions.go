package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/questlog/questlog/internal/schema"
)

const sessionColumns = `row_id, backend_id, type, user_id, task_id, goal_id, started_at, ended_at,
	duration_ms, completed, notes, synced, created_at, updated_at`

// SessionFilter configures ListSessions.
type SessionFilter struct {
	Type      schema.SessionType
	LocalOnly bool
	// Unsynced restricts results to sessions not yet pushed to the backend
	Unsynced bool
	Limit    int
}

// CreateSession inserts a timer session and assigns a local ID unless it
// already has a backend ID.
func (db *DB) CreateSession(ctx context.Context, s *schema.TimerSession) error {
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	taskRef, err := encodeRef(s.TaskID)
	if err != nil {
		return err
	}
	goalRef, err := encodeRef(s.GoalID)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO timer_sessions (
		backend_id, type, user_id, task_id, goal_id, started_at, ended_at,
		duration_ms, completed, notes, synced, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.conn.ExecContext(ctx, query,
		backendIDValue(s.ID),
		string(s.Type),
		s.UserID,
		taskRef,
		goalRef,
		formatTime(s.StartedAt),
		timeToNullString(s.EndedAt),
		s.Duration.Milliseconds(),
		boolToInt(s.Completed),
		s.Notes,
		boolToInt(s.SyncedToBackend),
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if !s.ID.IsBackend() {
		rowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read session id: %w", err)
		}
		s.ID = schema.LocalID(rowID)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns ErrNotFound if it doesn't exist.
func (db *DB) GetSession(ctx context.Context, id schema.ID) (*schema.TimerSession, error) {
	where, arg, err := whereID(id)
	if err != nil {
		return nil, err
	}
	row := db.conn.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM timer_sessions WHERE "+where, arg)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ActiveSession returns the most recently started session that has not
// ended, or ErrNotFound.
func (db *DB) ActiveSession(ctx context.Context) (*schema.TimerSession, error) {
	query := "SELECT " + sessionColumns + " FROM timer_sessions WHERE ended_at IS NULL ORDER BY started_at DESC, row_id DESC LIMIT 1"
	s, err := scanSession(db.conn.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions returns sessions in insertion order.
func (db *DB) ListSessions(ctx context.Context, filter SessionFilter) ([]*schema.TimerSession, error) {
	var conditions []string
	var args []interface{}

	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.LocalOnly {
		conditions = append(conditions, "backend_id IS NULL")
	}
	if filter.Unsynced {
		conditions = append(conditions, "synced = 0")
	}

	query := "SELECT " + sessionColumns + " FROM timer_sessions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY row_id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*schema.TimerSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSession writes every field of s to the row addressed by s.ID.
func (db *DB) UpdateSession(ctx context.Context, s *schema.TimerSession) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	where, arg, err := whereID(s.ID)
	if err != nil {
		return err
	}
	taskRef, err := encodeRef(s.TaskID)
	if err != nil {
		return err
	}
	goalRef, err := encodeRef(s.GoalID)
	if err != nil {
		return err
	}

	query := `
	UPDATE timer_sessions SET
		type = ?, user_id = ?, task_id = ?, goal_id = ?, started_at = ?, ended_at = ?,
		duration_ms = ?, completed = ?, notes = ?, synced = ?, created_at = ?, updated_at = ?
	WHERE ` + where
	res, err := db.conn.ExecContext(ctx, query,
		string(s.Type),
		s.UserID,
		taskRef,
		goalRef,
		formatTime(s.StartedAt),
		timeToNullString(s.EndedAt),
		s.Duration.Milliseconds(),
		boolToInt(s.Completed),
		s.Notes,
		boolToInt(s.SyncedToBackend),
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
		arg,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.ID, err)
	}
	return expectRow(res, "session", s.ID)
}

// UpsertSession inserts or updates a session keyed by its backend ID.
// Sessions loaded from the backend are marked synced.
func (db *DB) UpsertSession(ctx context.Context, s *schema.TimerSession) error {
	if !s.ID.IsBackend() {
		return fmt.Errorf("upsert requires a backend id (got %q)", s.ID)
	}
	s.SetDefaults()
	s.SyncedToBackend = true
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	taskRef, err := encodeRef(s.TaskID)
	if err != nil {
		return err
	}
	goalRef, err := encodeRef(s.GoalID)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO timer_sessions (
		backend_id, type, user_id, task_id, goal_id, started_at, ended_at,
		duration_ms, completed, notes, synced, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(backend_id) DO UPDATE SET
		type = excluded.type,
		user_id = excluded.user_id,
		task_id = excluded.task_id,
		goal_id = excluded.goal_id,
		started_at = excluded.started_at,
		ended_at = excluded.ended_at,
		duration_ms = excluded.duration_ms,
		completed = excluded.completed,
		notes = excluded.notes,
		synced = 1,
		updated_at = excluded.updated_at
	`
	_, err = db.conn.ExecContext(ctx, query,
		s.ID.Backend(),
		string(s.Type),
		s.UserID,
		taskRef,
		goalRef,
		formatTime(s.StartedAt),
		timeToNullString(s.EndedAt),
		s.Duration.Milliseconds(),
		boolToInt(s.Completed),
		s.Notes,
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", s.ID, err)
	}
	return nil
}

// DeleteSession removes a session. Returns nil if it doesn't exist.
func (db *DB) DeleteSession(ctx context.Context, id schema.ID) error {
	where, arg, err := whereID(id)
	if err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM timer_sessions WHERE "+where, arg); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// RewriteSessionID migrates a session from old to the backend ID new.
func (db *DB) RewriteSessionID(ctx context.Context, old, new schema.ID) error {
	if old == new {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return assignBackendID(ctx, tx, "timer_sessions", old, new)
	})
}

// MarkSessionSynced records that the session was pushed to the backend.
func (db *DB) MarkSessionSynced(ctx context.Context, id schema.ID) error {
	where, arg, err := whereID(id)
	if err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, "UPDATE timer_sessions SET synced = 1 WHERE "+where, arg)
	if err != nil {
		return fmt.Errorf("failed to mark session %s synced: %w", id, err)
	}
	return expectRow(res, "session", id)
}

// FindSessionByDedupeKey returns the local-only session matching key, or nil.
func (db *DB) FindSessionByDedupeKey(ctx context.Context, key string) (*schema.TimerSession, error) {
	sessions, err := db.ListSessions(ctx, SessionFilter{LocalOnly: true})
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.DedupeKey() == key {
			return s, nil
		}
	}
	return nil, nil
}

func scanSession(row rowScanner) (*schema.TimerSession, error) {
	var s schema.TimerSession
	var rowID, durationMS int64
	var backendID, taskRef, goalRef, endedAt sql.NullString
	var typ, startedAt, createdAt, updatedAt string
	var completed, synced int

	err := row.Scan(
		&rowID,
		&backendID,
		&typ,
		&s.UserID,
		&taskRef,
		&goalRef,
		&startedAt,
		&endedAt,
		&durationMS,
		&completed,
		&s.Notes,
		&synced,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	s.ID = recordID(rowID, backendID)
	s.Type = schema.SessionType(typ)
	s.StartedAt = parseTime(startedAt)
	s.EndedAt = nullStringToTime(endedAt)
	s.Duration = time.Duration(durationMS) * time.Millisecond
	s.Completed = completed != 0
	s.SyncedToBackend = synced != 0
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	if s.TaskID, err = decodeRef(taskRef); err != nil {
		return nil, err
	}
	if s.GoalID, err = decodeRef(goalRef); err != nil {
		return nil, err
	}
	return &s, nil
}
