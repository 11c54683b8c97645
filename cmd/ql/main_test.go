package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/questlog/questlog/internal/api/apitest"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/migrate"
	"github.com/questlog/questlog/internal/sync"
)

// setupCLI isolates config and data under a temp dir and points the CLI at
// a fake backend.
func setupCLI(t *testing.T, token string) (*apitest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("NO_COLOR", "1")

	srv := apitest.NewServer("secret")
	t.Cleanup(srv.Close)
	t.Setenv("QL_API_BASE_URL", srv.URL)
	t.Setenv("QL_AUTH_TOKEN", token)

	dbPath := filepath.Join(dir, "questlog.db")
	t.Setenv("QL_STORE_PATH", dbPath)
	return srv, dbPath
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	jsonOutput, verbose, configFile = false, false, ""
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func openDB(t *testing.T, path string) *db.DB {
	t.Helper()
	store, err := db.Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddAndSync(t *testing.T) {
	srv, dbPath := setupCLI(t, "secret")

	if err := run(t, "task", "add", "Write", "report", "--priority", "high", "--due", "2026-12-01"); err != nil {
		t.Fatalf("task add failed: %v", err)
	}
	if err := run(t, "sync", "tasks"); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if srv.Len(apitest.Tasks) != 1 {
		t.Fatalf("backend has %d tasks, want 1", srv.Len(apitest.Tasks))
	}

	store := openDB(t, dbPath)
	tasks, err := store.ListTasks(context.Background(), db.TaskFilter{})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("ListTasks = %v, %v", tasks, err)
	}
	task := tasks[0]
	if task.Title != "Write report" || !task.ID.IsBackend() {
		t.Errorf("unexpected task after sync: %+v", task)
	}
	if task.DueDate == nil || task.DueDate.Format("2006-01-02") != "2026-12-01" {
		t.Errorf("due date = %v", task.DueDate)
	}
}

func TestSyncPartialFailureExitCode(t *testing.T) {
	srv, _ := setupCLI(t, "secret")
	srv.FailWhen(func(r apitest.Request) bool { return r.Method == "POST" })

	if err := run(t, "task", "add", "Doomed"); err != nil {
		t.Fatalf("task add failed: %v", err)
	}
	err := run(t, "sync", "tasks")
	exit, ok := err.(*exitError)
	if !ok || exit.code != 2 {
		t.Fatalf("sync error = %v, want exit code 2", err)
	}
}

func TestSyncRequiresLogin(t *testing.T) {
	setupCLI(t, "")
	if err := run(t, "sync"); err == nil {
		t.Fatal("expected error when not logged in")
	}
}

func TestEntitiesArg(t *testing.T) {
	all, err := entitiesArg(nil)
	if err != nil || len(all) != 3 {
		t.Errorf("entitiesArg(nil) = %v, %v", all, err)
	}
	one, err := entitiesArg([]string{"goals"})
	if err != nil || len(one) != 1 || one[0] != sync.EntityGoals {
		t.Errorf("entitiesArg(goals) = %v, %v", one, err)
	}
	if _, err := entitiesArg([]string{"habits"}); err == nil {
		t.Error("expected error for unknown entity")
	}
}

func TestFormatFlag(t *testing.T) {
	got, err := formatFlag(exportCmd, []string{"backup.jsonl"})
	if err != nil || got != migrate.FormatJSONL {
		t.Errorf("formatFlag(backup.jsonl) = %q, %v", got, err)
	}
	got, err = formatFlag(exportCmd, nil)
	if err != nil || got != migrate.FormatYAML {
		t.Errorf("formatFlag() = %q, %v", got, err)
	}
}

func TestMinutesLabel(t *testing.T) {
	ten, thirty := 10, 30
	tests := []struct {
		actual, estimated *int
		want              string
	}{
		{actual: &ten, estimated: &thirty, want: "10/30m"},
		{actual: nil, estimated: &thirty, want: "0/30m"},
		{actual: &ten, estimated: nil, want: "10m"},
	}
	for _, tt := range tests {
		if got := minutesLabel(tt.actual, tt.estimated); got != tt.want {
			t.Errorf("minutesLabel() = %q, want %q", got, tt.want)
		}
	}
}

func TestBenchLeavesStoreAlone(t *testing.T) {
	srv, dbPath := setupCLI(t, "secret")

	err := run(t, "bench", "--tasks", "20", "--goals", "2", "--sessions", "4",
		"--readers", "2", "--queries", "3", "--json")
	if err != nil {
		t.Fatalf("bench failed: %v", err)
	}
	if srv.RequestCount() != 0 {
		t.Errorf("bench sent %d requests to the configured backend", srv.RequestCount())
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Errorf("bench created the configured store: %v", err)
	}
}
