package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/questlog/questlog/internal/schema"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := database.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return database
}

func TestInitSchemaIdempotent(t *testing.T) {
	database := setupTestDB(t)
	if err := database.InitSchema(context.Background()); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

func TestCreateTaskAssignsLocalID(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	est := 30
	task := &schema.Task{Title: "Write tests", Priority: schema.PriorityHigh, DueDate: &due, EstimatedMinutes: &est}
	if err := database.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if !task.ID.IsLocal() {
		t.Fatalf("expected local id, got %v", task.ID)
	}

	got, err := database.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Write tests" || got.Priority != schema.PriorityHigh {
		t.Errorf("unexpected task: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}
	if got.EstimatedMinutes == nil || *got.EstimatedMinutes != 30 {
		t.Errorf("EstimatedMinutes = %v, want 30", got.EstimatedMinutes)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("CreatedAt lost precision: %v vs %v", got.CreatedAt, task.CreatedAt)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	database := setupTestDB(t)

	_, err := database.GetTask(context.Background(), schema.LocalID(99))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRewriteTaskIDMigratesReferences(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	task := &schema.Task{Title: "Draft outline"}
	if err := database.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	localID := task.ID

	goal := &schema.Goal{Title: "Book", TaskIDs: []schema.ID{localID}}
	if err := database.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}
	session := &schema.TimerSession{Type: schema.SessionFocus, TaskID: &localID}
	if err := database.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	backendID := schema.BackendID("ctask001")
	if err := database.RewriteTaskID(ctx, localID, backendID); err != nil {
		t.Fatalf("RewriteTaskID failed: %v", err)
	}

	if _, err := database.GetTask(ctx, localID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old local id should no longer resolve, got %v", err)
	}
	migrated, err := database.GetTask(ctx, backendID)
	if err != nil {
		t.Fatalf("GetTask by backend id failed: %v", err)
	}
	if migrated.ID != backendID {
		t.Errorf("task id = %v, want %v", migrated.ID, backendID)
	}

	gotGoal, err := database.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("GetGoal failed: %v", err)
	}
	if len(gotGoal.TaskIDs) != 1 || gotGoal.TaskIDs[0] != backendID {
		t.Errorf("goal task ids = %v, want [%v]", gotGoal.TaskIDs, backendID)
	}

	gotSession, err := database.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if gotSession.TaskID == nil || *gotSession.TaskID != backendID {
		t.Errorf("session task id = %v, want %v", gotSession.TaskID, backendID)
	}

	// Rewriting to the same id is a no-op.
	if err := database.RewriteTaskID(ctx, backendID, backendID); err != nil {
		t.Errorf("no-op rewrite failed: %v", err)
	}
}

func TestUpsertTaskByBackendID(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	task := &schema.Task{ID: schema.BackendID("b1"), Title: "Remote"}
	if err := database.UpsertTask(ctx, task); err != nil {
		t.Fatalf("first UpsertTask failed: %v", err)
	}
	task.Title = "Remote edited"
	task.Completed = true
	if err := database.UpsertTask(ctx, task); err != nil {
		t.Fatalf("second UpsertTask failed: %v", err)
	}

	tasks, err := database.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Title != "Remote edited" || !tasks[0].Completed {
		t.Errorf("upsert did not update: %+v", tasks[0])
	}

	if err := database.UpsertTask(ctx, &schema.Task{ID: schema.LocalID(1), Title: "x"}); err == nil {
		t.Error("expected error upserting a local id")
	}
}

func TestListTasksOrderAndFilters(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		if err := database.CreateTask(ctx, &schema.Task{Title: title, Category: "work"}); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}
	if err := database.CreateTask(ctx, &schema.Task{ID: schema.BackendID("r"), Title: "remote", Completed: true}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	all, err := database.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 4 || all[0].Title != "one" || all[2].Title != "three" {
		t.Errorf("unexpected order: %v", titles(all))
	}

	local, _ := database.ListTasks(ctx, TaskFilter{LocalOnly: true})
	if len(local) != 3 {
		t.Errorf("expected 3 local tasks, got %d", len(local))
	}

	done := true
	completed, _ := database.ListTasks(ctx, TaskFilter{Completed: &done})
	if len(completed) != 1 || completed[0].Title != "remote" {
		t.Errorf("unexpected completed tasks: %v", titles(completed))
	}

	work, _ := database.ListTasks(ctx, TaskFilter{Category: "work", Limit: 2})
	if len(work) != 2 {
		t.Errorf("expected 2 limited work tasks, got %d", len(work))
	}
}

func TestDeleteTaskDropsReferences(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	task := &schema.Task{Title: "Temp"}
	if err := database.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	goal := &schema.Goal{Title: "Goal", TaskIDs: []schema.ID{task.ID}}
	if err := database.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}

	if err := database.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if err := database.DeleteTask(ctx, task.ID); err != nil {
		t.Errorf("second DeleteTask should be idempotent: %v", err)
	}

	gotGoal, err := database.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("GetGoal failed: %v", err)
	}
	if len(gotGoal.TaskIDs) != 0 {
		t.Errorf("goal still references deleted task: %v", gotGoal.TaskIDs)
	}
}

func TestRewriteGoalIDMigratesTaskReferences(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	goal := &schema.Goal{Title: "Fitness"}
	if err := database.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}
	task := &schema.Task{Title: "Run", GoalIDs: []schema.ID{goal.ID}}
	if err := database.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if err := database.RewriteGoalID(ctx, goal.ID, schema.BackendID("g-1")); err != nil {
		t.Fatalf("RewriteGoalID failed: %v", err)
	}
	got, err := database.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(got.GoalIDs) != 1 || got.GoalIDs[0] != schema.BackendID("g-1") {
		t.Errorf("task goal ids = %v", got.GoalIDs)
	}

	if err := database.RewriteGoalID(ctx, schema.LocalID(999), schema.BackendID("g-2")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing goal, got %v", err)
	}
}

func TestActiveSessionAndCounts(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	if _, err := database.ActiveSession(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no sessions, got %v", err)
	}

	start := time.Now().UTC().Add(-time.Hour)
	done := &schema.TimerSession{Type: schema.SessionBreak, StartedAt: start}
	done.Stop(start.Add(5 * time.Minute))
	if err := database.CreateSession(ctx, done); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	running := &schema.TimerSession{Type: schema.SessionDeep, StartedAt: time.Now().UTC()}
	if err := database.CreateSession(ctx, running); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	active, err := database.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("ActiveSession failed: %v", err)
	}
	if active.ID != running.ID {
		t.Errorf("active session = %v, want %v", active.ID, running.ID)
	}

	if err := database.MarkSessionSynced(ctx, done.ID); err != nil {
		t.Fatalf("MarkSessionSynced failed: %v", err)
	}
	unsynced, _ := database.ListSessions(ctx, SessionFilter{Unsynced: true})
	if len(unsynced) != 1 {
		t.Errorf("expected 1 unsynced session, got %d", len(unsynced))
	}

	counts, err := database.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.Sessions != 2 || counts.ActiveSessions != 1 || counts.LocalSessions != 2 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestRevisionTracksEditsNotMigration(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	revision := func() int64 {
		t.Helper()
		n, err := database.Revision(ctx)
		if err != nil {
			t.Fatalf("Revision failed: %v", err)
		}
		return n
	}

	start := revision()
	task := &schema.Task{Title: "counted"}
	if err := database.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	session := &schema.TimerSession{Type: schema.SessionFocus, TaskID: &task.ID}
	if err := database.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	afterCreate := revision()
	if afterCreate <= start {
		t.Fatalf("revision did not grow on insert: %d -> %d", start, afterCreate)
	}

	// What a sync writes locally.
	if err := database.RewriteTaskID(ctx, task.ID, schema.BackendID("remote-1")); err != nil {
		t.Fatalf("RewriteTaskID failed: %v", err)
	}
	if err := database.MarkSessionSynced(ctx, session.ID); err != nil {
		t.Fatalf("MarkSessionSynced failed: %v", err)
	}
	if got := revision(); got != afterCreate {
		t.Errorf("sync bookkeeping changed revision: %d -> %d", afterCreate, got)
	}

	task.ID = schema.BackendID("remote-1")
	task.Completed = true
	task.Touch()
	if err := database.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	afterEdit := revision()
	if afterEdit <= afterCreate {
		t.Errorf("revision did not grow on edit: %d -> %d", afterCreate, afterEdit)
	}

	if err := database.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if got := revision(); got <= afterEdit {
		t.Errorf("revision did not grow on delete: %d -> %d", afterEdit, got)
	}
}

func titles(tasks []*schema.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}
