// Package app holds the application state: the local store, the backend
// client, the credential and the syncer, wired together behind one value.
//
// Every user-facing operation (create a task, start a timer, sync) is a
// method on *App. Writes land in the local store first; the backend is only
// contacted when a token is available, and a backend failure never loses the
// local write.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
	"github.com/questlog/questlog/internal/sync"
)

// Sentinel errors for timer operations.
var (
	ErrSessionActive   = errors.New("a timer session is already running")
	ErrNoActiveSession = errors.New("no timer session is running")
)

// Remote is the backend surface the app uses. *api.Client satisfies it.
type Remote interface {
	sync.Remote
	DeleteTask(ctx context.Context, id schema.ID) error
	DeleteGoal(ctx context.Context, id schema.ID) error
}

// EventKind describes a record change.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventUpdated  EventKind = "updated"
	EventDeleted  EventKind = "deleted"
	EventMigrated EventKind = "migrated"
)

// Event reports one record change.
type Event struct {
	Kind   EventKind   `json:"kind"`
	Entity sync.Entity `json:"entity"`
	ID     schema.ID   `json:"id"`
	Title  string      `json:"title"`
	Record interface{} `json:"record,omitempty"`
}

// Notifier receives record changes. If it also implements sync.Notifier,
// it receives sync progress too.
type Notifier interface {
	RecordChanged(event Event)
}

// Options configures an App.
type Options struct {
	// Store is the local database (required, schema initialized)
	Store *db.DB

	// Remote is the backend client (required)
	Remote Remote

	// Auth reports whether a token is available (required)
	Auth sync.Authenticator

	// Strategy for merged views (default: sync.BackendWins)
	Strategy sync.Strategy

	// Notifier receives change events (optional)
	Notifier Notifier

	// Logger (default: stderr with "[app] " prefix)
	Logger *log.Logger

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time
}

// App is the application context.
type App struct {
	store    *db.DB
	remote   Remote
	auth     sync.Authenticator
	syncer   *sync.Syncer
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
}

// New wires an App together.
func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if opts.Remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("auth cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[app] ", log.LstdFlags)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	syncOpts := sync.Options{Strategy: opts.Strategy, Logger: opts.Logger}
	if sn, ok := opts.Notifier.(sync.Notifier); ok {
		syncOpts.Notifier = sn
	}

	return &App{
		store:    opts.Store,
		remote:   opts.Remote,
		auth:     opts.Auth,
		syncer:   sync.New(opts.Store, opts.Remote, opts.Auth, syncOpts),
		notifier: opts.Notifier,
		logger:   opts.Logger,
		now:      opts.Clock,
	}, nil
}

// Store returns the local database.
func (a *App) Store() *db.DB { return a.store }

// Syncer returns the syncer.
func (a *App) Syncer() *sync.Syncer { return a.syncer }

// Authenticated reports whether backend calls will be attempted.
func (a *App) Authenticated() bool { return a.auth.Authenticated() }

// LocalRevision reports the store's edit counter.
func (a *App) LocalRevision(ctx context.Context) (int64, error) {
	return a.store.Revision(ctx)
}

func (a *App) emit(kind EventKind, entity sync.Entity, id schema.ID, title string, record interface{}) {
	if a.notifier == nil {
		return
	}
	a.notifier.RecordChanged(Event{Kind: kind, Entity: entity, ID: id, Title: title, Record: record})
}

func (a *App) clock() time.Time {
	return a.now().UTC()
}

// Sync pushes one entity type to the backend.
func (a *App) Sync(ctx context.Context, entity sync.Entity) (*sync.Result, error) {
	return a.syncer.Sync(ctx, entity)
}

// SyncAll pushes every entity type concurrently.
func (a *App) SyncAll(ctx context.Context) ([]*sync.Result, error) {
	return a.syncer.SyncAll(ctx)
}

// Pull copies backend records of one entity type into the local store.
func (a *App) Pull(ctx context.Context, entity sync.Entity) (*sync.Result, error) {
	return a.syncer.Pull(ctx, entity)
}

// Status summarizes local state for display.
type Status struct {
	Authenticated bool                 `json:"authenticated"`
	Counts        db.Counts            `json:"counts"`
	Sync          []sync.Status        `json:"sync"`
	Active        *schema.TimerSession `json:"active_session,omitempty"`
}

// Status reports counts, sync states and the running session.
func (a *App) Status(ctx context.Context) (*Status, error) {
	counts, err := a.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	st := &Status{
		Authenticated: a.Authenticated(),
		Counts:        counts,
		Sync:          a.syncer.States(),
	}
	active, err := a.ActiveSession(ctx)
	switch {
	case err == nil:
		st.Active = active
	case !errors.Is(err, ErrNoActiveSession):
		return nil, err
	}
	return st, nil
}
