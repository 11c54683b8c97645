package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/questlog/questlog/internal/schema"
)

const goalColumns = `row_id, backend_id, title, description, target_date, completed, progress,
	category, task_ids, created_at, updated_at`

// GoalFilter configures ListGoals.
type GoalFilter struct {
	Completed *bool
	Category  string
	LocalOnly bool
	Limit     int
}

// CreateGoal inserts a goal and assigns a local ID unless it already has a
// backend ID.
func (db *DB) CreateGoal(ctx context.Context, goal *schema.Goal) error {
	goal.SetDefaults()
	if err := goal.Validate(); err != nil {
		return fmt.Errorf("invalid goal: %w", err)
	}
	taskIDs, err := encodeIDs(goal.TaskIDs)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO goals (
		backend_id, title, description, target_date, completed, progress,
		category, task_ids, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.conn.ExecContext(ctx, query,
		backendIDValue(goal.ID),
		goal.Title,
		goal.Description,
		timeToNullString(goal.TargetDate),
		boolToInt(goal.Completed),
		goal.Progress,
		goal.Category,
		taskIDs,
		formatTime(goal.CreatedAt),
		formatTime(goal.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}

	if !goal.ID.IsBackend() {
		rowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read goal id: %w", err)
		}
		goal.ID = schema.LocalID(rowID)
	}
	return nil
}

// GetGoal retrieves a goal by ID. Returns ErrNotFound if it doesn't exist.
func (db *DB) GetGoal(ctx context.Context, id schema.ID) (*schema.Goal, error) {
	where, arg, err := whereID(id)
	if err != nil {
		return nil, err
	}
	row := db.conn.QueryRowContext(ctx, "SELECT "+goalColumns+" FROM goals WHERE "+where, arg)
	goal, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// ListGoals returns goals in insertion order.
func (db *DB) ListGoals(ctx context.Context, filter GoalFilter) ([]*schema.Goal, error) {
	var conditions []string
	var args []interface{}

	if filter.Completed != nil {
		conditions = append(conditions, "completed = ?")
		args = append(args, boolToInt(*filter.Completed))
	}
	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.LocalOnly {
		conditions = append(conditions, "backend_id IS NULL")
	}

	query := "SELECT " + goalColumns + " FROM goals"
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
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*schema.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goals: %w", err)
	}
	return goals, nil
}

// UpdateGoal writes every field of goal to the row addressed by goal.ID.
func (db *DB) UpdateGoal(ctx context.Context, goal *schema.Goal) error {
	if err := goal.Validate(); err != nil {
		return fmt.Errorf("invalid goal: %w", err)
	}
	where, arg, err := whereID(goal.ID)
	if err != nil {
		return err
	}
	taskIDs, err := encodeIDs(goal.TaskIDs)
	if err != nil {
		return err
	}

	query := `
	UPDATE goals SET
		title = ?, description = ?, target_date = ?, completed = ?, progress = ?,
		category = ?, task_ids = ?, created_at = ?, updated_at = ?
	WHERE ` + where
	res, err := db.conn.ExecContext(ctx, query,
		goal.Title,
		goal.Description,
		timeToNullString(goal.TargetDate),
		boolToInt(goal.Completed),
		goal.Progress,
		goal.Category,
		taskIDs,
		formatTime(goal.CreatedAt),
		formatTime(goal.UpdatedAt),
		arg,
	)
	if err != nil {
		return fmt.Errorf("failed to update goal %s: %w", goal.ID, err)
	}
	return expectRow(res, "goal", goal.ID)
}

// UpsertGoal inserts or updates a goal keyed by its backend ID.
func (db *DB) UpsertGoal(ctx context.Context, goal *schema.Goal) error {
	if !goal.ID.IsBackend() {
		return fmt.Errorf("upsert requires a backend id (got %q)", goal.ID)
	}
	goal.SetDefaults()
	if err := goal.Validate(); err != nil {
		return fmt.Errorf("invalid goal: %w", err)
	}
	taskIDs, err := encodeIDs(goal.TaskIDs)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO goals (
		backend_id, title, description, target_date, completed, progress,
		category, task_ids, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(backend_id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		target_date = excluded.target_date,
		completed = excluded.completed,
		progress = excluded.progress,
		category = excluded.category,
		task_ids = excluded.task_ids,
		updated_at = excluded.updated_at
	`
	_, err = db.conn.ExecContext(ctx, query,
		goal.ID.Backend(),
		goal.Title,
		goal.Description,
		timeToNullString(goal.TargetDate),
		boolToInt(goal.Completed),
		goal.Progress,
		goal.Category,
		taskIDs,
		formatTime(goal.CreatedAt),
		formatTime(goal.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert goal %s: %w", goal.ID, err)
	}
	return nil
}

// DeleteGoal removes a goal. Returns nil if it doesn't exist (idempotent).
func (db *DB) DeleteGoal(ctx context.Context, id schema.ID) error {
	where, arg, err := whereID(id)
	if err != nil {
		return err
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM goals WHERE "+where, arg); err != nil {
			return fmt.Errorf("failed to delete goal %s: %w", id, err)
		}
		if err := dropFromIDLists(ctx, tx, "tasks", "goal_ids", id); err != nil {
			return err
		}
		return clearRefs(ctx, tx, "timer_sessions", "goal_id", id)
	})
}

// RewriteGoalID migrates a goal from old to the backend ID new, and rewrites
// the references tasks and timer sessions hold to it.
func (db *DB) RewriteGoalID(ctx context.Context, old, new schema.ID) error {
	if old == new {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := assignBackendID(ctx, tx, "goals", old, new); err != nil {
			return err
		}
		if err := rewriteIDLists(ctx, tx, "tasks", "goal_ids", old, new); err != nil {
			return err
		}
		return rewriteRefs(ctx, tx, "timer_sessions", "goal_id", old, new)
	})
}

// FindGoalByDedupeKey returns the local-only goal matching key, or nil.
func (db *DB) FindGoalByDedupeKey(ctx context.Context, key string) (*schema.Goal, error) {
	goals, err := db.ListGoals(ctx, GoalFilter{LocalOnly: true})
	if err != nil {
		return nil, err
	}
	for _, goal := range goals {
		if goal.DedupeKey() == key {
			return goal, nil
		}
	}
	return nil, nil
}

func scanGoal(row rowScanner) (*schema.Goal, error) {
	var goal schema.Goal
	var rowID int64
	var backendID, targetDate sql.NullString
	var completed int
	var taskIDs, createdAt, updatedAt string

	err := row.Scan(
		&rowID,
		&backendID,
		&goal.Title,
		&goal.Description,
		&targetDate,
		&completed,
		&goal.Progress,
		&goal.Category,
		&taskIDs,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan goal: %w", err)
	}

	goal.ID = recordID(rowID, backendID)
	goal.TargetDate = nullStringToTime(targetDate)
	goal.Completed = completed != 0
	goal.CreatedAt = parseTime(createdAt)
	goal.UpdatedAt = parseTime(updatedAt)
	if goal.TaskIDs, err = decodeIDs(taskIDs); err != nil {
		return nil, err
	}
	return &goal, nil
}
