package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
)

// ErrUnauthenticated is returned by sync and pull when no token is available.
var ErrUnauthenticated = auth.ErrUnauthenticated

// Entity names a synced record type.
type Entity string

const (
	EntityTasks    Entity = "tasks"
	EntityGoals    Entity = "goals"
	EntitySessions Entity = "sessions"
)

// Entities lists every entity type in display order.
func Entities() []Entity {
	return []Entity{EntityTasks, EntityGoals, EntitySessions}
}

// ParseEntity accepts singular and plural names.
func ParseEntity(s string) (Entity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "task", "tasks":
		return EntityTasks, nil
	case "goal", "goals":
		return EntityGoals, nil
	case "session", "sessions", "timer", "timer-sessions":
		return EntitySessions, nil
	default:
		return "", fmt.Errorf("unknown entity %q (want tasks, goals or sessions)", s)
	}
}

// Result reports one sync or pull run.
type Result struct {
	Entity    Entity        `json:"entity"`
	Synced    int           `json:"synced"`
	Errors    []string      `json:"errors"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Success is true only if no record failed.
func (r *Result) Success() bool {
	return len(r.Errors) == 0
}

// PartialError signals that at least one record failed. The Result still
// counts the records that made it.
type PartialError struct {
	Result *Result
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s sync incomplete: %d failed, %d synced (first error: %s)",
		e.Result.Entity, len(e.Result.Errors), e.Result.Synced, e.Result.Errors[0])
}

// Authenticator reports whether a token is available. auth.Store satisfies it.
type Authenticator interface {
	Authenticated() bool
}

// Remote is the backend surface the syncer needs. *api.Client satisfies it.
type Remote interface {
	ListTasks(ctx context.Context) ([]*schema.Task, error)
	GetTask(ctx context.Context, id schema.ID) (*schema.Task, error)
	CreateTask(ctx context.Context, t *schema.Task) (*schema.Task, error)
	UpdateTask(ctx context.Context, id schema.ID, t *schema.Task) (*schema.Task, error)

	ListGoals(ctx context.Context) ([]*schema.Goal, error)
	GetGoal(ctx context.Context, id schema.ID) (*schema.Goal, error)
	CreateGoal(ctx context.Context, g *schema.Goal) (*schema.Goal, error)
	UpdateGoal(ctx context.Context, id schema.ID, g *schema.Goal) (*schema.Goal, error)

	ListSessions(ctx context.Context) ([]*schema.TimerSession, error)
	GetSession(ctx context.Context, id schema.ID) (*schema.TimerSession, error)
	CreateSession(ctx context.Context, s *schema.TimerSession) (*schema.TimerSession, error)
	UpdateSession(ctx context.Context, id schema.ID, s *schema.TimerSession) (*schema.TimerSession, error)
}

// Options configures a Syncer.
type Options struct {
	// Strategy decides merge collisions (default: BackendWins)
	Strategy Strategy

	// Notifier receives state changes and results (optional)
	Notifier Notifier

	// Logger (default: stderr with "[sync] " prefix)
	Logger *log.Logger
}

// Syncer pushes, loads, merges and pulls records for all entity types.
type Syncer struct {
	db       *db.DB
	remote   Remote
	auth     Authenticator
	strategy Strategy
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time

	tasks    *adapter[*schema.Task]
	goals    *adapter[*schema.Goal]
	sessions *adapter[*schema.TimerSession]

	guards map[Entity]*guard
}

// New creates a Syncer. The database must have its schema initialized.
func New(database *db.DB, remote Remote, authn Authenticator, opts Options) *Syncer {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.Strategy == "" {
		opts.Strategy = BackendWins
	}
	s := &Syncer{
		db:       database,
		remote:   remote,
		auth:     authn,
		strategy: opts.Strategy,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		now:      time.Now,
		guards: map[Entity]*guard{
			EntityTasks:    {},
			EntityGoals:    {},
			EntitySessions: {},
		},
	}
	s.tasks = taskAdapter(database, remote)
	s.goals = goalAdapter(database, remote)
	s.sessions = sessionAdapter(database, remote)
	return s
}

// Authenticated reports whether the syncer would reach the backend.
func (s *Syncer) Authenticated() bool {
	return s.auth != nil && s.auth.Authenticated()
}

// Strategy returns the merge strategy in effect.
func (s *Syncer) Strategy() Strategy {
	return s.strategy
}

// SetNotifier replaces the notifier. Call before any sync starts.
func (s *Syncer) SetNotifier(n Notifier) {
	s.notifier = n
}

// SyncTasks pushes every local task to the backend.
func (s *Syncer) SyncTasks(ctx context.Context) (*Result, error) {
	return s.guarded(EntityTasks, "sync", func() (*Result, error) {
		return syncEntity(ctx, s, s.tasks)
	})
}

// SyncGoals pushes every local goal to the backend.
func (s *Syncer) SyncGoals(ctx context.Context) (*Result, error) {
	return s.guarded(EntityGoals, "sync", func() (*Result, error) {
		return syncEntity(ctx, s, s.goals)
	})
}

// SyncSessions pushes every local timer session to the backend.
func (s *Syncer) SyncSessions(ctx context.Context) (*Result, error) {
	return s.guarded(EntitySessions, "sync", func() (*Result, error) {
		return syncEntity(ctx, s, s.sessions)
	})
}

// Sync dispatches to the entity's sync routine.
func (s *Syncer) Sync(ctx context.Context, entity Entity) (*Result, error) {
	switch entity {
	case EntityTasks:
		return s.SyncTasks(ctx)
	case EntityGoals:
		return s.SyncGoals(ctx)
	case EntitySessions:
		return s.SyncSessions(ctx)
	default:
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
}

// LoadTasks fetches backend tasks. It returns an empty slice when
// unauthenticated or when the request fails.
func (s *Syncer) LoadTasks(ctx context.Context) []*schema.Task {
	return loadEntity(ctx, s, s.tasks)
}

// LoadGoals fetches backend goals, or an empty slice.
func (s *Syncer) LoadGoals(ctx context.Context) []*schema.Goal {
	return loadEntity(ctx, s, s.goals)
}

// LoadSessions fetches backend timer sessions, or an empty slice.
func (s *Syncer) LoadSessions(ctx context.Context) []*schema.TimerSession {
	return loadEntity(ctx, s, s.sessions)
}

// MergeTasks returns backend tasks followed by local tasks the backend
// doesn't know.
func (s *Syncer) MergeTasks(ctx context.Context) ([]*schema.Task, error) {
	return mergeEntity(ctx, s, s.tasks)
}

// MergeGoals is MergeTasks for goals.
func (s *Syncer) MergeGoals(ctx context.Context) ([]*schema.Goal, error) {
	return mergeEntity(ctx, s, s.goals)
}

// MergeSessions is MergeTasks for timer sessions.
func (s *Syncer) MergeSessions(ctx context.Context) ([]*schema.TimerSession, error) {
	return mergeEntity(ctx, s, s.sessions)
}

// PullTasks copies backend tasks into the local store.
func (s *Syncer) PullTasks(ctx context.Context) (*Result, error) {
	return s.guarded(EntityTasks, "pull", func() (*Result, error) {
		return pullEntity(ctx, s, s.tasks)
	})
}

// PullGoals copies backend goals into the local store.
func (s *Syncer) PullGoals(ctx context.Context) (*Result, error) {
	return s.guarded(EntityGoals, "pull", func() (*Result, error) {
		return pullEntity(ctx, s, s.goals)
	})
}

// PullSessions copies backend timer sessions into the local store.
func (s *Syncer) PullSessions(ctx context.Context) (*Result, error) {
	return s.guarded(EntitySessions, "pull", func() (*Result, error) {
		return pullEntity(ctx, s, s.sessions)
	})
}

// Pull dispatches to the entity's pull routine.
func (s *Syncer) Pull(ctx context.Context, entity Entity) (*Result, error) {
	switch entity {
	case EntityTasks:
		return s.PullTasks(ctx)
	case EntityGoals:
		return s.PullGoals(ctx)
	case EntitySessions:
		return s.PullSessions(ctx)
	default:
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
}
