package migrate

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "questlog.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return store
}

// seed fills store with a backend task, a local task, a goal linking both
// and a finished session on the local task.
func seed(t *testing.T, store *db.DB) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2026, 3, 2, 8, 30, 0, 123000000, time.UTC)

	synced := &schema.Task{ID: schema.BackendID("remote-1"), Title: "Book flights", CreatedAt: created}
	if err := store.CreateTask(ctx, synced); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	due := created.Add(72 * time.Hour)
	local := &schema.Task{Title: "Pack bags", Priority: schema.PriorityHigh, DueDate: &due, CreatedAt: created.Add(time.Minute)}
	if err := store.CreateTask(ctx, local); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	goal := &schema.Goal{Title: "Trip", Progress: 50, CreatedAt: created, TaskIDs: []schema.ID{synced.ID, local.ID}}
	if err := store.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}
	local.GoalIDs = []schema.ID{goal.ID}
	if err := store.UpdateTask(ctx, local); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	session := &schema.TimerSession{Type: schema.SessionFocus, TaskID: &local.ID, GoalID: &goal.ID, StartedAt: created, CreatedAt: created}
	session.Stop(created.Add(30 * time.Minute))
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatJSONL} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			src := setupTestDB(t)
			seed(t, src)

			var buf bytes.Buffer
			if err := Export(ctx, src, &buf, format); err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			snapshot := buf.String()

			dst := setupTestDB(t)
			result, err := Import(ctx, dst, strings.NewReader(snapshot), format)
			if err != nil {
				t.Fatalf("Import failed: %v", err)
			}
			if result.Tasks != 2 || result.Goals != 1 || result.Sessions != 1 || result.Skipped != 0 {
				t.Errorf("unexpected result: %+v", result)
			}
			if len(result.Errors) != 0 {
				t.Errorf("unexpected errors: %v", result.Errors)
			}

			tasks, err := dst.ListTasks(ctx, db.TaskFilter{})
			if err != nil {
				t.Fatalf("ListTasks failed: %v", err)
			}
			byTitle := map[string]*schema.Task{}
			for _, task := range tasks {
				if task.ID.IsBackend() {
					t.Errorf("imported task %q kept backend id %s", task.Title, task.ID)
				}
				byTitle[task.Title] = task
			}
			pack := byTitle["Pack bags"]
			if pack == nil || pack.Priority != schema.PriorityHigh || pack.DueDate == nil {
				t.Fatalf("Pack bags not imported intact: %+v", pack)
			}

			goals, err := dst.ListGoals(ctx, db.GoalFilter{})
			if err != nil || len(goals) != 1 {
				t.Fatalf("ListGoals = %v, %v", goals, err)
			}
			goal := goals[0]
			if goal.Progress != 50 || len(goal.TaskIDs) != 2 {
				t.Errorf("goal not imported intact: %+v", goal)
			}
			for _, id := range goal.TaskIDs {
				if _, err := dst.GetTask(ctx, id); err != nil {
					t.Errorf("goal references missing task %s", id)
				}
			}
			if len(pack.GoalIDs) != 1 || !pack.GoalIDs[0].Equal(goal.ID) {
				t.Errorf("task goal ids = %v, want [%s]", pack.GoalIDs, goal.ID)
			}

			sessions, err := dst.ListSessions(ctx, db.SessionFilter{})
			if err != nil || len(sessions) != 1 {
				t.Fatalf("ListSessions = %v, %v", sessions, err)
			}
			s := sessions[0]
			if s.SyncedToBackend {
				t.Error("imported session should not be marked synced")
			}
			if s.Duration != 30*time.Minute {
				t.Errorf("session duration = %v, want 30m", s.Duration)
			}
			if s.TaskID == nil || !s.TaskID.Equal(pack.ID) || s.GoalID == nil || !s.GoalID.Equal(goal.ID) {
				t.Errorf("session references not remapped: task=%v goal=%v", s.TaskID, s.GoalID)
			}

			// A second import finds everything already present.
			again, err := Import(ctx, dst, strings.NewReader(snapshot), format)
			if err != nil {
				t.Fatalf("second Import failed: %v", err)
			}
			if again.Tasks+again.Goals+again.Sessions != 0 || again.Skipped != 4 {
				t.Errorf("second import: %+v", again)
			}
		})
	}
}

func TestImportDropsUnknownReferences(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	input := `{"kind":"goal","record":{"id":9,"title":"Orphaned","progress":0,"completed":false,"createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z","taskIds":[41,"gone"]}}
`
	result, err := Import(ctx, store, strings.NewReader(input), FormatJSONL)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Goals != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	goals, err := store.ListGoals(ctx, db.GoalFilter{})
	if err != nil || len(goals) != 1 {
		t.Fatalf("ListGoals = %v, %v", goals, err)
	}
	if len(goals[0].TaskIDs) != 0 {
		t.Errorf("expected dangling references dropped, got %v", goals[0].TaskIDs)
	}
}

func TestReadJSONLErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bad json", input: "{not json}\n", want: "line 1"},
		{name: "unknown kind", input: "\n{\"kind\":\"habit\",\"record\":{}}\n", want: `unknown kind "habit" at line 2`},
		{name: "bad record", input: `{"kind":"task","record":{"id":true}}` + "\n", want: "invalid task"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readJSONL(strings.NewReader(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("readJSONL() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestReadYAMLRejectsNewerVersion(t *testing.T) {
	if _, err := readYAML(strings.NewReader("version: 99\n")); err == nil {
		t.Error("expected error for newer snapshot version")
	}
	snap, err := readYAML(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty input: %v", err)
	}
	if len(snap.Tasks) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "yaml", want: FormatYAML},
		{in: "YML", want: FormatYAML},
		{in: "jsonl", want: FormatJSONL},
		{in: "ndjson", want: FormatJSONL},
		{in: "csv", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}

	if got := FormatFromPath("backup.jsonl", FormatYAML); got != FormatJSONL {
		t.Errorf("FormatFromPath(.jsonl) = %q", got)
	}
	if got := FormatFromPath("backup.txt", FormatYAML); got != FormatYAML {
		t.Errorf("FormatFromPath(.txt) = %q", got)
	}
}
