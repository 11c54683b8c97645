// Package db provides the local persistent store for questlog.
//
// The store is an embedded SQLite database (ncruces/go-sqlite3, wasm build)
// holding tasks, goals and timer sessions. It mirrors the backend and also
// keeps records that have never been pushed.
//
// Architecture:
//   - Database file: $XDG_DATA_HOME/questlog/questlog.db by default
//   - WAL mode: the sync daemon reads while the CLI writes
//   - Each table has an autoincrement row_id (the local ID) and a nullable,
//     unique backend_id. A record's ID is its backend_id once set.
//
// Identifier migration happens through RewriteTaskID, RewriteGoalID and
// RewriteSessionID, which also rewrite references held by other records.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/questlog/questlog/internal/schema"
)

// ErrNotFound is returned when a record does not exist locally.
var ErrNotFound = errors.New("record not found")

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open("/home/me/.local/share/questlog/questlog.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path}, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS tasks (
		row_id INTEGER PRIMARY KEY AUTOINCREMENT,
		backend_id TEXT UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		priority TEXT NOT NULL DEFAULT 'medium',
		category TEXT NOT NULL DEFAULT '',
		due_date TEXT,
		estimated_minutes INTEGER,
		actual_minutes INTEGER,
		goal_ids TEXT NOT NULL DEFAULT '[]',  -- JSON array of ids
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goals (
		row_id INTEGER PRIMARY KEY AUTOINCREMENT,
		backend_id TEXT UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		target_date TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		progress INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
		category TEXT NOT NULL DEFAULT '',
		task_ids TEXT NOT NULL DEFAULT '[]',  -- JSON array of ids
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timer_sessions (
		row_id INTEGER PRIMARY KEY AUTOINCREMENT,
		backend_id TEXT UNIQUE,
		type TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		task_id TEXT,  -- JSON encoded id
		goal_id TEXT,  -- JSON encoded id
		started_at TEXT NOT NULL,
		ended_at TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		synced INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);
	CREATE INDEX IF NOT EXISTS idx_goals_completed ON goals(completed);
	CREATE INDEX IF NOT EXISTS idx_sessions_active ON timer_sessions(ended_at);

	-- revision counts record edits. Id migration and the synced flag leave
	-- updated_at alone, so they don't bump it.
	CREATE TABLE IF NOT EXISTS revision (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		n INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO revision (id, n) VALUES (1, 0);
	`

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	for _, table := range []string{"tasks", "goals", "timer_sessions"} {
		for event, on := range map[string]string{
			"insert": "AFTER INSERT",
			"delete": "AFTER DELETE",
			"update": "AFTER UPDATE OF updated_at",
		} {
			trigger := fmt.Sprintf(`
			CREATE TRIGGER IF NOT EXISTS %s_revision_%s %s ON %s
			BEGIN
				UPDATE revision SET n = n + 1 WHERE id = 1;
			END`, table, event, on, table)
			if _, err := db.conn.ExecContext(ctx, trigger); err != nil {
				return fmt.Errorf("failed to create %s %s trigger: %w", table, event, err)
			}
		}
	}
	return nil
}

// Revision returns a counter that grows with every record insert, delete or
// edit. Backend id migration and MarkSessionSynced do not change it.
func (db *DB) Revision(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, "SELECT n FROM revision WHERE id = 1").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	return n, nil
}

// Counts summarizes the store for status output.
type Counts struct {
	Tasks          int `json:"tasks"`
	LocalTasks     int `json:"local_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	Goals          int `json:"goals"`
	LocalGoals     int `json:"local_goals"`
	Sessions       int `json:"sessions"`
	LocalSessions  int `json:"local_sessions"`
	ActiveSessions int `json:"active_sessions"`
}

// Counts returns per-table record counts.
func (db *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	query := `
	SELECT
		(SELECT COUNT(*) FROM tasks),
		(SELECT COUNT(*) FROM tasks WHERE backend_id IS NULL),
		(SELECT COUNT(*) FROM tasks WHERE completed = 1),
		(SELECT COUNT(*) FROM goals),
		(SELECT COUNT(*) FROM goals WHERE backend_id IS NULL),
		(SELECT COUNT(*) FROM timer_sessions),
		(SELECT COUNT(*) FROM timer_sessions WHERE backend_id IS NULL),
		(SELECT COUNT(*) FROM timer_sessions WHERE ended_at IS NULL)
	`
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&c.Tasks, &c.LocalTasks, &c.CompletedTasks,
		&c.Goals, &c.LocalGoals,
		&c.Sessions, &c.LocalSessions, &c.ActiveSessions,
	)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count records: %w", err)
	}
	return c, nil
}

// whereID returns the predicate and argument addressing a record by ID.
func whereID(id schema.ID) (string, interface{}, error) {
	switch {
	case id.IsBackend():
		return "backend_id = ?", id.Backend(), nil
	case id.IsLocal():
		return "row_id = ? AND backend_id IS NULL", id.Local(), nil
	default:
		return "", nil, fmt.Errorf("id is empty")
	}
}

// recordID builds the ID of a scanned row.
func recordID(rowID int64, backendID sql.NullString) schema.ID {
	if backendID.Valid && backendID.String != "" {
		return schema.BackendID(backendID.String)
	}
	return schema.LocalID(rowID)
}

func backendIDValue(id schema.ID) sql.NullString {
	if !id.IsBackend() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.Backend(), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func intToNull(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullToInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func encodeIDs(ids []schema.ID) (string, error) {
	if ids == nil {
		ids = []schema.ID{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ids: %w", err)
	}
	return string(data), nil
}

func decodeIDs(s string) ([]schema.ID, error) {
	ids := []schema.ID{}
	if s == "" || s == "null" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ids: %w", err)
	}
	return ids, nil
}

func encodeRef(id *schema.ID) (sql.NullString, error) {
	if id == nil || id.IsZero() {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(*id)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal id: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeRef(ns sql.NullString) (*schema.ID, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var id schema.ID
	if err := json.Unmarshal([]byte(ns.String), &id); err != nil {
		return nil, fmt.Errorf("failed to unmarshal id: %w", err)
	}
	if id.IsZero() {
		return nil, nil
	}
	return &id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rewriteRefs replaces a JSON encoded id reference in a single column.
func rewriteRefs(ctx context.Context, tx *sql.Tx, table, column string, old, new schema.ID) error {
	oldRef, err := encodeRef(&old)
	if err != nil {
		return err
	}
	newRef, err := encodeRef(&new)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", table, column, column)
	if _, err := tx.ExecContext(ctx, query, newRef, oldRef); err != nil {
		return fmt.Errorf("failed to rewrite %s.%s: %w", table, column, err)
	}
	return nil
}

// rewriteIDLists replaces old with new inside a JSON id array column.
func rewriteIDLists(ctx context.Context, tx *sql.Tx, table, column string, old, new schema.ID) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT row_id, %s FROM %s", column, table))
	if err != nil {
		return fmt.Errorf("failed to read %s.%s: %w", table, column, err)
	}

	type change struct {
		rowID int64
		ids   string
	}
	var changes []change
	for rows.Next() {
		var rowID int64
		var raw string
		if err := rows.Scan(&rowID, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan %s.%s: %w", table, column, err)
		}
		ids, err := decodeIDs(raw)
		if err != nil {
			rows.Close()
			return err
		}
		replaced, changed := schema.ReplaceID(ids, old, new)
		if !changed {
			continue
		}
		encoded, err := encodeIDs(replaced)
		if err != nil {
			rows.Close()
			return err
		}
		changes = append(changes, change{rowID: rowID, ids: encoded})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating %s: %w", table, err)
	}
	rows.Close()

	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE row_id = ?", table, column)
	for _, c := range changes {
		if _, err := tx.ExecContext(ctx, query, c.ids, c.rowID); err != nil {
			return fmt.Errorf("failed to update %s.%s: %w", table, column, err)
		}
	}
	return nil
}

// assignBackendID sets backend_id on the row addressed by old.
func assignBackendID(ctx context.Context, tx *sql.Tx, table string, old, new schema.ID) error {
	if !new.IsBackend() {
		return fmt.Errorf("new id %q is not a backend id", new)
	}
	where, arg, err := whereID(old)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET backend_id = ? WHERE %s", table, where)
	res, err := tx.ExecContext(ctx, query, new.Backend(), arg)
	if err != nil {
		return fmt.Errorf("failed to assign backend id %s: %w", new, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to assign backend id %s: %w", new, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, old, ErrNotFound)
	}
	return nil
}

// withTx runs fn inside a transaction.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
