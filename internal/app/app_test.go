package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/questlog/questlog/internal/api"
	"github.com/questlog/questlog/internal/api/apitest"
	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
	"github.com/questlog/questlog/internal/sync"
)

const testToken = "app-test-token"

type fakeClock struct {
	mu  gosync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     gosync.Mutex
	events []Event
}

func (r *recorder) RecordChanged(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type testApp struct {
	*App
	srv    *apitest.Server
	clock  *fakeClock
	events *recorder
}

func setupTestApp(t *testing.T, token string) *testApp {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "questlog.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	srv := apitest.NewServer(testToken)
	t.Cleanup(srv.Close)
	client, err := api.New(srv.URL, auth.Static(token), api.Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	clock := &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	events := &recorder{}
	a, err := New(Options{
		Store:    store,
		Remote:   client,
		Auth:     auth.Static(token),
		Notifier: events,
		Logger:   log.New(os.Stderr, "[test] ", 0),
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return &testApp{App: a, srv: srv, clock: clock, events: events}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without store")
	}
}

func TestCreateAndToggleTaskOffline(t *testing.T) {
	a := setupTestApp(t, "")
	ctx := context.Background()

	task, err := a.CreateTask(ctx, &schema.Task{Title: "Read paper"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if !task.ID.IsLocal() || !task.CreatedAt.Equal(a.clock.Now()) {
		t.Errorf("unexpected task: %+v", task)
	}

	a.clock.Advance(time.Minute)
	toggled, err := a.ToggleTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("ToggleTask failed: %v", err)
	}
	if !toggled.Completed || !toggled.UpdatedAt.Equal(a.clock.Now()) {
		t.Errorf("unexpected toggled task: %+v", toggled)
	}
	if a.srv.RequestCount() != 0 {
		t.Errorf("offline edits should not reach the backend, got %d requests", a.srv.RequestCount())
	}

	kinds := a.events.kinds()
	if len(kinds) != 2 || kinds[0] != EventCreated || kinds[1] != EventUpdated {
		t.Errorf("events = %v", kinds)
	}
}

func TestUpdateTaskMirrorsBackendRecords(t *testing.T) {
	a := setupTestApp(t, testToken)
	ctx := context.Background()

	task, _ := a.CreateTask(ctx, &schema.Task{Title: "Mirror me"})
	if _, err := a.Sync(ctx, sync.EntityTasks); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	tasks, _ := a.Tasks(ctx, db.TaskFilter{})
	backendID := tasks[0].ID
	if backendID == task.ID {
		t.Fatal("sync should migrate the id")
	}

	if _, err := a.UpdateTask(ctx, backendID, func(t *schema.Task) error {
		t.Title = "Mirrored"
		return nil
	}); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if rec := a.srv.Record(apitest.Tasks, backendID.Backend()); rec["title"] != "Mirrored" {
		t.Errorf("backend title = %v", rec["title"])
	}

	// A failing backend keeps the local edit.
	a.srv.FailWhen(func(r apitest.Request) bool { return r.Method == http.MethodPut })
	updated, err := a.UpdateTask(ctx, backendID, func(t *schema.Task) error {
		t.Title = "Local only edit"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTask should succeed locally: %v", err)
	}
	if updated.Title != "Local only edit" {
		t.Errorf("Title = %q", updated.Title)
	}
}

func TestDeleteTaskRemovesRemoteCopy(t *testing.T) {
	a := setupTestApp(t, testToken)
	ctx := context.Background()

	if _, err := a.CreateTask(ctx, &schema.Task{Title: "Disposable"}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if _, err := a.Sync(ctx, sync.EntityTasks); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	tasks, _ := a.Tasks(ctx, db.TaskFilter{})

	if err := a.DeleteTask(ctx, tasks[0].ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if a.srv.Len(apitest.Tasks) != 0 {
		t.Error("backend copy should be deleted")
	}
	if _, err := a.Task(ctx, tasks[0].ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateGoalPushesWhenAuthenticated(t *testing.T) {
	a := setupTestApp(t, testToken)
	ctx := context.Background()

	goal, err := a.CreateGoal(ctx, &schema.Goal{Title: "Learn Go"})
	if err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}
	if !goal.ID.IsBackend() {
		t.Fatalf("goal should carry a backend id, got %v", goal.ID)
	}
	stored, err := a.Goal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("Goal(%s) failed: %v", goal.ID, err)
	}
	if stored.Title != "Learn Go" {
		t.Errorf("stored goal = %+v", stored)
	}
	kinds := a.events.kinds()
	if len(kinds) != 2 || kinds[1] != EventMigrated {
		t.Errorf("events = %v", kinds)
	}
}

func TestCreateGoalStaysLocalOnFailure(t *testing.T) {
	a := setupTestApp(t, testToken)
	a.srv.FailWhen(func(r apitest.Request) bool { return r.Method == http.MethodPost })

	goal, err := a.CreateGoal(context.Background(), &schema.Goal{Title: "Offline goal"})
	if err != nil {
		t.Fatalf("CreateGoal should succeed locally: %v", err)
	}
	if !goal.ID.IsLocal() {
		t.Errorf("goal should stay local-only, got %v", goal.ID)
	}
}

func TestLinkTaskAndProgress(t *testing.T) {
	a := setupTestApp(t, "")
	ctx := context.Background()

	goal, _ := a.CreateGoal(ctx, &schema.Goal{Title: "Ship v1"})
	first, _ := a.CreateTask(ctx, &schema.Task{Title: "Design"})
	second, _ := a.CreateTask(ctx, &schema.Task{Title: "Build"})

	if _, err := a.LinkTask(ctx, goal.ID, first.ID); err != nil {
		t.Fatalf("LinkTask failed: %v", err)
	}
	got, err := a.LinkTask(ctx, goal.ID, second.ID)
	if err != nil {
		t.Fatalf("LinkTask failed: %v", err)
	}
	if len(got.TaskIDs) != 2 || got.Progress != 0 {
		t.Errorf("unexpected goal after linking: %+v", got)
	}
	linkedTask, _ := a.Task(ctx, first.ID)
	if !schema.ContainsID(linkedTask.GoalIDs, goal.ID) {
		t.Errorf("task should reference the goal: %v", linkedTask.GoalIDs)
	}

	if _, err := a.ToggleTask(ctx, first.ID); err != nil {
		t.Fatalf("ToggleTask failed: %v", err)
	}
	got, _ = a.Goal(ctx, goal.ID)
	if got.Progress != 50 || got.Completed {
		t.Errorf("progress = %d completed = %v, want 50 false", got.Progress, got.Completed)
	}

	if _, err := a.ToggleTask(ctx, second.ID); err != nil {
		t.Fatalf("ToggleTask failed: %v", err)
	}
	got, _ = a.Goal(ctx, goal.ID)
	if got.Progress != 100 || !got.Completed {
		t.Errorf("progress = %d completed = %v, want 100 true", got.Progress, got.Completed)
	}

	if _, err := a.SetGoalProgress(ctx, goal.ID, 101); err == nil {
		t.Error("expected error for progress above 100")
	}
}

func TestTimerLifecycle(t *testing.T) {
	a := setupTestApp(t, "")
	ctx := context.Background()

	task, _ := a.CreateTask(ctx, &schema.Task{Title: "Deep work"})

	if _, err := a.StopSession(ctx, ""); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}

	session, err := a.StartSession(ctx, schema.SessionDeep, &task.ID, nil)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := a.StartSession(ctx, schema.SessionFocus, nil, nil); !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}

	a.clock.Advance(52 * time.Minute)
	stopped, err := a.StopSession(ctx, "good run")
	if err != nil {
		t.Fatalf("StopSession failed: %v", err)
	}
	if stopped.ID != session.ID || stopped.Duration != 52*time.Minute || !stopped.Completed || stopped.Notes != "good run" {
		t.Errorf("unexpected stopped session: %+v", stopped)
	}

	credited, _ := a.Task(ctx, task.ID)
	if credited.ActualMinutes == nil || *credited.ActualMinutes != 52 {
		t.Errorf("ActualMinutes = %v, want 52", credited.ActualMinutes)
	}

	if _, err := a.ActiveSession(ctx); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected no active session, got %v", err)
	}

	missing := schema.LocalID(999)
	if _, err := a.StartSession(ctx, schema.SessionFocus, &missing, nil); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing task, got %v", err)
	}
}

func TestShortBreakIsNotCompleted(t *testing.T) {
	a := setupTestApp(t, "")
	ctx := context.Background()

	if _, err := a.StartSession(ctx, schema.SessionBreak, nil, nil); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	a.clock.Advance(3 * time.Minute)
	stopped, err := a.StopSession(ctx, "")
	if err != nil {
		t.Fatalf("StopSession failed: %v", err)
	}
	if stopped.Completed {
		t.Error("a 3 minute break should not count as completed")
	}
}

func TestStatus(t *testing.T) {
	a := setupTestApp(t, "")
	ctx := context.Background()

	a.CreateTask(ctx, &schema.Task{Title: "one"})
	a.StartSession(ctx, schema.SessionFocus, nil, nil)

	st, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Authenticated || st.Counts.Tasks != 1 || st.Active == nil || len(st.Sync) != 3 {
		t.Errorf("unexpected status: %+v", st)
	}
}
