package loadtest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/questlog/questlog/internal/api/apitest"
	"github.com/questlog/questlog/internal/db"
)

func newFixture(t *testing.T, opts Options) *Fixture {
	t.Helper()
	f, err := NewFixture(context.Background(), t.TempDir(), opts)
	if err != nil {
		t.Fatalf("NewFixture failed: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestNewFixture(t *testing.T) {
	f := newFixture(t, Options{Tasks: 100, Goals: 10, Sessions: 8, CompletedPct: 0.3})

	if len(f.TaskIDs) != 100 || len(f.GoalIDs) != 10 || len(f.SessionIDs) != 8 {
		t.Fatalf("seeded %d tasks, %d goals, %d sessions", len(f.TaskIDs), len(f.GoalIDs), len(f.SessionIDs))
	}
	if f.Completed < 15 || f.Completed > 45 {
		t.Errorf("expected ~30 completed tasks, got %d", f.Completed)
	}

	counts, err := f.Store.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.Tasks != 100 || counts.Goals != 10 || counts.Sessions != 8 {
		t.Errorf("store counts = %+v", counts)
	}

	goal, err := f.Store.GetGoal(context.Background(), f.GoalIDs[0])
	if err != nil {
		t.Fatalf("GetGoal failed: %v", err)
	}
	if len(goal.TaskIDs) != 10 {
		t.Errorf("goal links %d tasks, want 10", len(goal.TaskIDs))
	}

	for _, id := range f.TaskIDs {
		if !id.IsLocal() {
			t.Fatalf("seeded task %s is not local-only", id)
		}
	}
}

func TestNewFixtureRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "negative tasks", opts: Options{Tasks: -1}},
		{name: "completed share above one", opts: Options{Tasks: 1, CompletedPct: 1.5}},
		{name: "negative completed share", opts: Options{Tasks: 1, CompletedPct: -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFixture(context.Background(), t.TempDir(), tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConcurrentQueries(t *testing.T) {
	f := newFixture(t, Options{Tasks: 100, CompletedPct: 0.3})

	stats, err := f.RunConcurrentQueries(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("RunConcurrentQueries failed: %v", err)
	}
	if stats.Errors > 0 {
		t.Errorf("got %d errors during queries", stats.Errors)
	}
	if stats.TotalQueries != 50 {
		t.Errorf("expected 50 total queries, got %d", stats.TotalQueries)
	}
	if stats.Min > stats.P50 || stats.P50 > stats.P95 || stats.P95 > stats.Max {
		t.Errorf("percentiles out of order: %+v", stats)
	}

	var buf bytes.Buffer
	stats.Fprint(&buf)
	if !strings.Contains(buf.String(), "Total Queries: 50") {
		t.Errorf("unexpected report:\n%s", buf.String())
	}
}

func TestConcurrentQueriesRejectsZero(t *testing.T) {
	f := newFixture(t, Options{Tasks: 1})
	if _, err := f.RunConcurrentQueries(context.Background(), 0, 5); err == nil {
		t.Error("expected error for zero readers")
	}
}

func TestRunSync(t *testing.T) {
	f := newFixture(t, Options{Tasks: 20, Goals: 2, Sessions: 4})
	ctx := context.Background()

	report, err := f.RunSync(ctx)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if report.Failed != 0 {
		t.Fatalf("sync failed %d records: %+v", report.Failed, report.Results)
	}
	if report.Synced != 26 {
		t.Errorf("Synced = %d, want 26", report.Synced)
	}
	if report.Requests == 0 {
		t.Error("expected backend requests")
	}
	if got := f.Backend.Len(apitest.Tasks); got != 20 {
		t.Errorf("backend holds %d tasks, want 20", got)
	}

	local, err := f.Store.ListTasks(ctx, db.TaskFilter{LocalOnly: true})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(local) != 0 {
		t.Errorf("%d tasks still local-only after sync", len(local))
	}
}

func TestComputeLatencyStats(t *testing.T) {
	if s := ComputeLatencyStats(nil); s.TotalQueries != 0 {
		t.Errorf("empty input gave %+v", s)
	}

	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}
	s := ComputeLatencyStats(durations)

	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("Min/Max = %v/%v", s.Min, s.Max)
	}
	if s.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", s.P50)
	}
	if s.P95 != 96*time.Millisecond || s.P99 != 100*time.Millisecond {
		t.Errorf("P95/P99 = %v/%v", s.P95, s.P99)
	}
	if s.Mean != 50500*time.Microsecond {
		t.Errorf("Mean = %v, want 50.5ms", s.Mean)
	}
	if durations[0] != 100*time.Millisecond {
		t.Error("input slice was reordered")
	}
}
