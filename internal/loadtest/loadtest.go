// Package loadtest measures the local store and the sync path under load.
//
// A Fixture is a throwaway database seeded with generated tasks, goals and
// sessions, wired to an in-memory backend. Readers hammer the store
// concurrently while latency is recorded; a full sync pushes every seeded
// record through the real client and syncer.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/questlog/questlog/internal/api"
	"github.com/questlog/questlog/internal/api/apitest"
	"github.com/questlog/questlog/internal/app"
	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
	qsync "github.com/questlog/questlog/internal/sync"
)

const fixtureToken = "loadtest"

// Options sizes a fixture.
type Options struct {
	// Tasks to generate
	Tasks int

	// Goals to generate. Each goal links a run of consecutive tasks
	Goals int

	// Sessions to generate, all stopped
	Sessions int

	// CompletedPct is the share of tasks marked completed (0.0-1.0)
	CompletedPct float64

	// Logger for the app and syncer (default: discard)
	Logger *log.Logger
}

// Fixture is a seeded store plus an in-memory backend.
type Fixture struct {
	Store   *db.DB
	Backend *apitest.Server
	App     *app.App

	TaskIDs    []schema.ID
	GoalIDs    []schema.ID
	SessionIDs []schema.ID
	Completed  int
}

// LatencyStats holds latency measurements.
type LatencyStats struct {
	Min          time.Duration   `json:"min"`
	Max          time.Duration   `json:"max"`
	Mean         time.Duration   `json:"mean"`
	P50          time.Duration   `json:"p50"`
	P95          time.Duration   `json:"p95"`
	P99          time.Duration   `json:"p99"`
	TotalQueries int             `json:"total_queries"`
	Errors       int             `json:"errors"`
	Durations    []time.Duration `json:"-"`
}

// SyncReport describes one full sync of a fixture.
type SyncReport struct {
	Results  []*qsync.Result `json:"results"`
	Synced   int             `json:"synced"`
	Failed   int             `json:"failed"`
	Requests int             `json:"requests"`
	Duration time.Duration   `json:"duration"`
}

// NewFixture creates a database under dir and seeds it.
//
// The caller MUST call Close() when done.
func NewFixture(ctx context.Context, dir string, opts Options) (*Fixture, error) {
	if opts.Tasks < 0 || opts.Goals < 0 || opts.Sessions < 0 {
		return nil, fmt.Errorf("record counts cannot be negative")
	}
	if opts.CompletedPct < 0 || opts.CompletedPct > 1 {
		return nil, fmt.Errorf("completed share must be between 0.0 and 1.0 (got %v)", opts.CompletedPct)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	store, err := db.Open(filepath.Join(dir, "loadtest.db"))
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	f := &Fixture{Store: store, Backend: apitest.NewServer(fixtureToken)}

	client, err := api.New(f.Backend.URL, auth.Static(fixtureToken), api.Options{Logger: opts.Logger})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	f.App, err = app.New(app.Options{
		Store:  store,
		Remote: client,
		Auth:   auth.Static(fixtureToken),
		Logger: opts.Logger,
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := f.seed(ctx, opts); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// Close shuts the backend down and closes the database.
func (f *Fixture) Close() error {
	if f.Backend != nil {
		f.Backend.Close()
		f.Backend = nil
	}
	if f.Store != nil {
		return f.Store.Close()
	}
	return nil
}

func (f *Fixture) seed(ctx context.Context, opts Options) error {
	tasks := generateTasks(opts.Tasks, opts.CompletedPct)
	for _, task := range tasks {
		if err := f.Store.CreateTask(ctx, task); err != nil {
			return fmt.Errorf("failed to insert task %q: %w", task.Title, err)
		}
		f.TaskIDs = append(f.TaskIDs, task.ID)
		if task.Completed {
			f.Completed++
		}
	}

	for _, goal := range generateGoals(opts.Goals, f.TaskIDs) {
		if err := f.Store.CreateGoal(ctx, goal); err != nil {
			return fmt.Errorf("failed to insert goal %q: %w", goal.Title, err)
		}
		f.GoalIDs = append(f.GoalIDs, goal.ID)
	}

	for _, session := range generateSessions(opts.Sessions, f.TaskIDs) {
		if err := f.Store.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to insert session %q: %w", session.Title(), err)
		}
		f.SessionIDs = append(f.SessionIDs, session.ID)
	}
	return nil
}

// RunConcurrentQueries simulates readers listing open tasks at once.
//
// Each reader performs queriesPerReader queries, recording latency for each.
// Returns aggregated latency statistics.
func (f *Fixture) RunConcurrentQueries(ctx context.Context, readers, queriesPerReader int) (*LatencyStats, error) {
	if readers <= 0 || queriesPerReader <= 0 {
		return nil, fmt.Errorf("readers and queries must be positive")
	}

	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, readers)
	errorsChan := make(chan error, readers)
	open := false

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, queriesPerReader)
			for j := 0; j < queriesPerReader; j++ {
				start := time.Now()
				_, err := f.Store.ListTasks(ctx, db.TaskFilter{Completed: &open})
				durations = append(durations, time.Since(start))
				if err != nil {
					errorsChan <- fmt.Errorf("reader %d query %d failed: %w", readerID, j, err)
					break
				}
			}
			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var all []time.Duration
	for durations := range resultsChan {
		all = append(all, durations...)
	}
	errorCount := 0
	var firstErr error
	for err := range errorsChan {
		if firstErr == nil {
			firstErr = err
		}
		errorCount++
	}

	if errorCount == readers {
		return nil, fmt.Errorf("no reader completed: %w", firstErr)
	}

	stats := ComputeLatencyStats(all)
	stats.Errors = errorCount
	return stats, nil
}

// RunSync pushes every entity type to the backend once and reports how long
// it took. A partial failure is reported in the counts, not as an error.
func (f *Fixture) RunSync(ctx context.Context) (*SyncReport, error) {
	before := f.Backend.RequestCount()
	start := time.Now()
	results, err := f.App.SyncAll(ctx)
	report := &SyncReport{
		Results:  results,
		Requests: f.Backend.RequestCount() - before,
		Duration: time.Since(start),
	}
	for _, r := range results {
		report.Synced += r.Synced
		report.Failed += len(r.Errors)
	}
	var partial *qsync.PartialError
	if err != nil && !errors.As(err, &partial) {
		return report, err
	}
	return report, nil
}

// generateTasks creates tasks with a realistic spread of priority and
// category. Creation times are staggered so dedupe keys stay distinct.
func generateTasks(count int, completedPct float64) []*schema.Task {
	tasks := make([]*schema.Task, count)
	categories := []string{"work", "home", "health", "learning"}

	// Weighted toward medium: high 20%, medium 50%, low 30%
	priorities := []schema.Priority{
		schema.PriorityHigh, schema.PriorityHigh,
		schema.PriorityMedium, schema.PriorityMedium, schema.PriorityMedium, schema.PriorityMedium, schema.PriorityMedium,
		schema.PriorityLow, schema.PriorityLow, schema.PriorityLow,
	}

	// Deterministic for reproducibility
	rng := rand.New(rand.NewSource(42))
	baseTime := time.Now().Add(-30 * 24 * time.Hour).Truncate(time.Second)

	for i := 0; i < count; i++ {
		createdAt := baseTime.Add(time.Duration(i) * time.Minute)
		estimate := 15 * (1 + rng.Intn(8))
		tasks[i] = &schema.Task{
			Title:            fmt.Sprintf("Load task %05d", i),
			Description:      fmt.Sprintf("Generated for load testing (batch %d)", i/100),
			Priority:         priorities[i%len(priorities)],
			Category:         categories[i%len(categories)],
			Completed:        rng.Float64() < completedPct,
			EstimatedMinutes: &estimate,
			CreatedAt:        createdAt,
			UpdatedAt:        createdAt,
		}
	}
	return tasks
}

// generateGoals spreads the tasks across count goals in consecutive runs.
func generateGoals(count int, taskIDs []schema.ID) []*schema.Goal {
	goals := make([]*schema.Goal, count)
	baseTime := time.Now().Add(-60 * 24 * time.Hour).Truncate(time.Second)
	per := 0
	if count > 0 {
		per = len(taskIDs) / count
	}

	for i := 0; i < count; i++ {
		createdAt := baseTime.Add(time.Duration(i) * time.Hour)
		goal := &schema.Goal{
			Title:     fmt.Sprintf("Load goal %04d", i),
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
		if per > 0 {
			goal.TaskIDs = append([]schema.ID(nil), taskIDs[i*per:(i+1)*per]...)
		}
		goals[i] = goal
	}
	return goals
}

// generateSessions creates stopped sessions, every other one attached to a
// task.
func generateSessions(count int, taskIDs []schema.ID) []*schema.TimerSession {
	sessions := make([]*schema.TimerSession, count)
	types := []schema.SessionType{schema.SessionFocus, schema.SessionFocus, schema.SessionDeep, schema.SessionBreak}
	baseTime := time.Now().Add(-7 * 24 * time.Hour).Truncate(time.Second)

	for i := 0; i < count; i++ {
		typ := types[i%len(types)]
		start := baseTime.Add(time.Duration(i) * time.Hour)
		s := &schema.TimerSession{
			Type:      typ,
			StartedAt: start,
			CreatedAt: start,
			UpdatedAt: start,
		}
		if i%2 == 0 && len(taskIDs) > 0 {
			id := taskIDs[i%len(taskIDs)]
			s.TaskID = &id
		}
		s.Stop(start.Add(typ.DefaultDuration()))
		sessions[i] = s
	}
	return sessions
}

// ComputeLatencyStats calculates statistics from a slice of durations.
func ComputeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(sorted)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(sorted),
		Durations:    sorted,
	}
}

// Fprint formats latency statistics.
func (s *LatencyStats) Fprint(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
