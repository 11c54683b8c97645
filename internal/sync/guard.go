package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// State is the per-entity sync state.
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateError
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Status is a snapshot of one entity's guard.
type Status struct {
	Entity     Entity    `json:"entity"`
	State      State     `json:"-"`
	StateName  string    `json:"state"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastResult *Result   `json:"last_result,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// guard serializes runs for one entity type. Concurrent callers of the same
// operation join the run in flight; a different operation waits for it.
type guard struct {
	group singleflight.Group
	run   gosync.Mutex

	mu         gosync.Mutex
	running    int
	failed     bool
	lastRun    time.Time
	lastResult *Result
	lastErr    error
}

func (g *guard) status(entity Entity) Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := Status{Entity: entity, State: StateIdle, LastRun: g.lastRun, LastResult: g.lastResult}
	switch {
	case g.running > 0:
		st.State = StateSyncing
	case g.failed:
		st.State = StateError
	}
	st.StateName = st.State.String()
	if g.lastErr != nil {
		st.LastError = g.lastErr.Error()
	}
	return st
}

func (g *guard) begin() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running++
}

func (g *guard) end(at time.Time, result *Result, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running--
	g.lastRun = at
	g.lastResult = result
	g.lastErr = err
	g.failed = err != nil
}

// guarded runs fn under the entity's guard. op separates sync from pull so
// they don't share results, but only one of them touches the entity's rows
// at a time: a pull adopting a row mid-sync would break the sync's id
// migration.
func (s *Syncer) guarded(entity Entity, op string, fn func() (*Result, error)) (*Result, error) {
	g := s.guards[entity]
	v, err, _ := g.group.Do(op, func() (interface{}, error) {
		g.begin()
		s.notifyState(entity, g)

		g.run.Lock()
		result, err := fn()
		g.run.Unlock()

		g.end(s.now().UTC(), result, err)
		s.notifyState(entity, g)
		if result != nil && s.notifier != nil && !errors.Is(err, ErrUnauthenticated) {
			s.notifier.SyncCompleted(result)
		}
		return result, err
	})
	result, _ := v.(*Result)
	return result, err
}

func (s *Syncer) notifyState(entity Entity, g *guard) {
	if s.notifier != nil {
		s.notifier.SyncStateChanged(g.status(entity))
	}
}

// State reports the guard state of one entity type.
func (s *Syncer) State(entity Entity) Status {
	g, ok := s.guards[entity]
	if !ok {
		return Status{Entity: entity, StateName: StateIdle.String()}
	}
	return g.status(entity)
}

// States reports every entity type in display order.
func (s *Syncer) States() []Status {
	out := make([]Status, 0, len(s.guards))
	for _, entity := range Entities() {
		out = append(out, s.State(entity))
	}
	return out
}

// SyncAll runs the three entity syncs concurrently. Results are returned in
// Entities() order; entries are never nil. The error joins every entity's
// failure.
func (s *Syncer) SyncAll(ctx context.Context) ([]*Result, error) {
	entities := Entities()
	results := make([]*Result, len(entities))
	errs := make([]error, len(entities))

	var g errgroup.Group
	for i, entity := range entities {
		g.Go(func() error {
			result, err := s.Sync(ctx, entity)
			if result == nil {
				result = &Result{Entity: entity, Errors: []string{}}
			}
			results[i] = result
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", entity, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
