package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/questlog/questlog/internal/schema"
)

const taskColumns = `row_id, backend_id, title, description, completed, priority, category,
	due_date, estimated_minutes, actual_minutes, goal_ids, created_at, updated_at`

// TaskFilter configures ListTasks.
type TaskFilter struct {
	// Completed filters by completion (nil = all)
	Completed *bool
	// Category filters by exact category (empty = all)
	Category string
	// LocalOnly restricts results to records without a backend id
	LocalOnly bool
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// CreateTask inserts a task. Tasks without a backend ID receive a local ID,
// which is written back into task.ID.
func (db *DB) CreateTask(ctx context.Context, task *schema.Task) error {
	task.SetDefaults()
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	goalIDs, err := encodeIDs(task.GoalIDs)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO tasks (
		backend_id, title, description, completed, priority, category,
		due_date, estimated_minutes, actual_minutes, goal_ids, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.conn.ExecContext(ctx, query,
		backendIDValue(task.ID),
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		string(task.Priority),
		task.Category,
		timeToNullString(task.DueDate),
		intToNull(task.EstimatedMinutes),
		intToNull(task.ActualMinutes),
		goalIDs,
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if !task.ID.IsBackend() {
		rowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read task id: %w", err)
		}
		task.ID = schema.LocalID(rowID)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns ErrNotFound if it doesn't exist.
func (db *DB) GetTask(ctx context.Context, id schema.ID) (*schema.Task, error) {
	where, arg, err := whereID(id)
	if err != nil {
		return nil, err
	}
	row := db.conn.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE "+where, arg)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns tasks in insertion order.
func (db *DB) ListTasks(ctx context.Context, filter TaskFilter) ([]*schema.Task, error) {
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

	query := "SELECT " + taskColumns + " FROM tasks"
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
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*schema.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask writes every field of task to the row addressed by task.ID.
func (db *DB) UpdateTask(ctx context.Context, task *schema.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	where, arg, err := whereID(task.ID)
	if err != nil {
		return err
	}
	goalIDs, err := encodeIDs(task.GoalIDs)
	if err != nil {
		return err
	}

	query := `
	UPDATE tasks SET
		title = ?, description = ?, completed = ?, priority = ?, category = ?,
		due_date = ?, estimated_minutes = ?, actual_minutes = ?, goal_ids = ?,
		created_at = ?, updated_at = ?
	WHERE ` + where
	res, err := db.conn.ExecContext(ctx, query,
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		string(task.Priority),
		task.Category,
		timeToNullString(task.DueDate),
		intToNull(task.EstimatedMinutes),
		intToNull(task.ActualMinutes),
		goalIDs,
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
		arg,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	return expectRow(res, "task", task.ID)
}

// UpsertTask inserts or updates a task keyed by its backend ID.
func (db *DB) UpsertTask(ctx context.Context, task *schema.Task) error {
	if !task.ID.IsBackend() {
		return fmt.Errorf("upsert requires a backend id (got %q)", task.ID)
	}
	task.SetDefaults()
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	goalIDs, err := encodeIDs(task.GoalIDs)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO tasks (
		backend_id, title, description, completed, priority, category,
		due_date, estimated_minutes, actual_minutes, goal_ids, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(backend_id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		completed = excluded.completed,
		priority = excluded.priority,
		category = excluded.category,
		due_date = excluded.due_date,
		estimated_minutes = excluded.estimated_minutes,
		actual_minutes = excluded.actual_minutes,
		goal_ids = excluded.goal_ids,
		updated_at = excluded.updated_at
	`
	_, err = db.conn.ExecContext(ctx, query,
		task.ID.Backend(),
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		string(task.Priority),
		task.Category,
		timeToNullString(task.DueDate),
		intToNull(task.EstimatedMinutes),
		intToNull(task.ActualMinutes),
		goalIDs,
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
	}
	return nil
}

// DeleteTask removes a task. Returns nil if it doesn't exist (idempotent).
// References held by goals and sessions are dropped too.
func (db *DB) DeleteTask(ctx context.Context, id schema.ID) error {
	where, arg, err := whereID(id)
	if err != nil {
		return err
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE "+where, arg); err != nil {
			return fmt.Errorf("failed to delete task %s: %w", id, err)
		}
		if err := dropFromIDLists(ctx, tx, "goals", "task_ids", id); err != nil {
			return err
		}
		return clearRefs(ctx, tx, "timer_sessions", "task_id", id)
	})
}

// RewriteTaskID migrates a task from old to the backend ID new, and rewrites
// the references goals and timer sessions hold to it.
func (db *DB) RewriteTaskID(ctx context.Context, old, new schema.ID) error {
	if old == new {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := assignBackendID(ctx, tx, "tasks", old, new); err != nil {
			return err
		}
		if err := rewriteIDLists(ctx, tx, "goals", "task_ids", old, new); err != nil {
			return err
		}
		return rewriteRefs(ctx, tx, "timer_sessions", "task_id", old, new)
	})
}

// FindTaskByDedupeKey returns the local-only task matching key, or nil.
func (db *DB) FindTaskByDedupeKey(ctx context.Context, key string) (*schema.Task, error) {
	tasks, err := db.ListTasks(ctx, TaskFilter{LocalOnly: true})
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if task.DedupeKey() == key {
			return task, nil
		}
	}
	return nil, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*schema.Task, error) {
	var task schema.Task
	var rowID int64
	var backendID sql.NullString
	var completed int
	var priority, goalIDs, createdAt, updatedAt string
	var dueDate sql.NullString
	var estimated, actual sql.NullInt64

	err := row.Scan(
		&rowID,
		&backendID,
		&task.Title,
		&task.Description,
		&completed,
		&priority,
		&task.Category,
		&dueDate,
		&estimated,
		&actual,
		&goalIDs,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task.ID = recordID(rowID, backendID)
	task.Completed = completed != 0
	task.Priority = schema.Priority(priority)
	task.DueDate = nullStringToTime(dueDate)
	task.EstimatedMinutes = nullToInt(estimated)
	task.ActualMinutes = nullToInt(actual)
	task.CreatedAt = parseTime(createdAt)
	task.UpdatedAt = parseTime(updatedAt)
	if task.GoalIDs, err = decodeIDs(goalIDs); err != nil {
		return nil, err
	}
	return &task, nil
}

func expectRow(res sql.Result, kind string, id schema.ID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// dropFromIDLists removes id from a JSON id array column.
func dropFromIDLists(ctx context.Context, tx *sql.Tx, table, column string, id schema.ID) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT row_id, %s FROM %s", column, table))
	if err != nil {
		return fmt.Errorf("failed to read %s.%s: %w", table, column, err)
	}

	updates := map[int64]string{}
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
		if !schema.ContainsID(ids, id) {
			continue
		}
		kept := ids[:0]
		for _, candidate := range ids {
			if candidate != id {
				kept = append(kept, candidate)
			}
		}
		encoded, err := encodeIDs(kept)
		if err != nil {
			rows.Close()
			return err
		}
		updates[rowID] = encoded
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating %s: %w", table, err)
	}
	rows.Close()

	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE row_id = ?", table, column)
	for rowID, encoded := range updates {
		if _, err := tx.ExecContext(ctx, query, encoded, rowID); err != nil {
			return fmt.Errorf("failed to update %s.%s: %w", table, column, err)
		}
	}
	return nil
}

// clearRefs nulls a JSON encoded id reference column wherever it equals id.
func clearRefs(ctx context.Context, tx *sql.Tx, table, column string, id schema.ID) error {
	ref, err := encodeRef(&id)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = ?", table, column, column)
	if _, err := tx.ExecContext(ctx, query, ref); err != nil {
		return fmt.Errorf("failed to clear %s.%s: %w", table, column, err)
	}
	return nil
}
