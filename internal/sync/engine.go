package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/questlog/questlog/internal/api"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
)

// recordKeys reads the fields sync and merge compare.
type recordKeys[T any] struct {
	id        func(T) schema.ID
	title     func(T) string
	key       func(T) string
	updatedAt func(T) time.Time
}

var taskKeys = recordKeys[*schema.Task]{
	id:        func(t *schema.Task) schema.ID { return t.ID },
	title:     func(t *schema.Task) string { return t.Title },
	key:       func(t *schema.Task) string { return t.DedupeKey() },
	updatedAt: func(t *schema.Task) time.Time { return t.UpdatedAt },
}

var goalKeys = recordKeys[*schema.Goal]{
	id:        func(g *schema.Goal) schema.ID { return g.ID },
	title:     func(g *schema.Goal) string { return g.Title },
	key:       func(g *schema.Goal) string { return g.DedupeKey() },
	updatedAt: func(g *schema.Goal) time.Time { return g.UpdatedAt },
}

var sessionKeys = recordKeys[*schema.TimerSession]{
	id:        func(s *schema.TimerSession) schema.ID { return s.ID },
	title:     func(s *schema.TimerSession) string { return s.Title() },
	key:       func(s *schema.TimerSession) string { return s.DedupeKey() },
	updatedAt: func(s *schema.TimerSession) time.Time { return s.UpdatedAt },
}

// adapter binds one entity type to its local and remote operations so the
// sync, load, merge and pull loops are written once.
type adapter[T any] struct {
	recordKeys[T]

	entity Entity
	label  string // singular, used in error messages

	listLocal   func(ctx context.Context) ([]T, error)
	rewrite     func(ctx context.Context, old, new schema.ID) error
	upsert      func(ctx context.Context, rec T) error
	findByKey   func(ctx context.Context, key string) (T, bool, error)
	afterPushed func(ctx context.Context, id schema.ID) error

	listRemote func(ctx context.Context) ([]T, error)
	get        func(ctx context.Context, id schema.ID) (T, error)
	create     func(ctx context.Context, rec T) (T, error)
	update     func(ctx context.Context, id schema.ID, rec T) (T, error)
}

func taskAdapter(database *db.DB, remote Remote) *adapter[*schema.Task] {
	return &adapter[*schema.Task]{
		recordKeys: taskKeys,
		entity:     EntityTasks,
		label:      "task",
		listLocal: func(ctx context.Context) ([]*schema.Task, error) {
			return database.ListTasks(ctx, db.TaskFilter{})
		},
		rewrite: database.RewriteTaskID,
		upsert:  database.UpsertTask,
		findByKey: func(ctx context.Context, key string) (*schema.Task, bool, error) {
			t, err := database.FindTaskByDedupeKey(ctx, key)
			return t, t != nil, err
		},
		listRemote: remote.ListTasks,
		get:        remote.GetTask,
		create:     remote.CreateTask,
		update:     remote.UpdateTask,
	}
}

func goalAdapter(database *db.DB, remote Remote) *adapter[*schema.Goal] {
	return &adapter[*schema.Goal]{
		recordKeys: goalKeys,
		entity:     EntityGoals,
		label:      "goal",
		listLocal: func(ctx context.Context) ([]*schema.Goal, error) {
			return database.ListGoals(ctx, db.GoalFilter{})
		},
		rewrite: database.RewriteGoalID,
		upsert:  database.UpsertGoal,
		findByKey: func(ctx context.Context, key string) (*schema.Goal, bool, error) {
			g, err := database.FindGoalByDedupeKey(ctx, key)
			return g, g != nil, err
		},
		listRemote: remote.ListGoals,
		get:        remote.GetGoal,
		create:     remote.CreateGoal,
		update:     remote.UpdateGoal,
	}
}

func sessionAdapter(database *db.DB, remote Remote) *adapter[*schema.TimerSession] {
	return &adapter[*schema.TimerSession]{
		recordKeys: sessionKeys,
		entity:     EntitySessions,
		label:      "timer session",
		listLocal: func(ctx context.Context) ([]*schema.TimerSession, error) {
			return database.ListSessions(ctx, db.SessionFilter{})
		},
		rewrite: database.RewriteSessionID,
		upsert:  database.UpsertSession,
		findByKey: func(ctx context.Context, key string) (*schema.TimerSession, bool, error) {
			s, err := database.FindSessionByDedupeKey(ctx, key)
			return s, s != nil, err
		},
		afterPushed: database.MarkSessionSynced,
		listRemote:  remote.ListSessions,
		get:         remote.GetSession,
		create:      remote.CreateSession,
		update:      remote.UpdateSession,
	}
}

// syncEntity pushes local records one at a time. A failing record is
// reported and skipped.
func syncEntity[T any](ctx context.Context, s *Syncer, a *adapter[T]) (*Result, error) {
	result := &Result{Entity: a.entity, Errors: []string{}, StartedAt: s.now().UTC()}
	if !s.Authenticated() {
		return result, ErrUnauthenticated
	}

	records, err := a.listLocal(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list local %s: %w", a.entity, err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s %q: %v", a.label, a.title(rec), err))
			continue
		}
		if err := push(ctx, a, rec); err != nil {
			s.logger.Printf("Warning: failed to sync %s %q: %v", a.label, a.title(rec), err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s %q: %v", a.label, a.title(rec), err))
			continue
		}
		result.Synced++
	}

	result.Duration = s.now().UTC().Sub(result.StartedAt)
	s.logger.Printf("Synced %s: %d ok, %d failed (%v)", a.entity, result.Synced, len(result.Errors), result.Duration.Round(time.Millisecond))
	if !result.Success() {
		return result, &PartialError{Result: result}
	}
	return result, nil
}

// push writes one record to the backend and migrates its id if the backend
// created it.
func push[T any](ctx context.Context, a *adapter[T], rec T) error {
	id := a.id(rec)
	if id.IsBackend() {
		_, err := a.get(ctx, id)
		if err == nil {
			_, err = a.update(ctx, id, rec)
		}
		if err == nil {
			return a.pushed(ctx, id)
		}
		if !errors.Is(err, api.ErrNotFound) {
			return err
		}
	}

	created, err := a.create(ctx, rec)
	if err != nil {
		return err
	}
	newID := a.id(created)
	if !newID.IsBackend() {
		return fmt.Errorf("backend returned %s without an id", a.label)
	}
	if !id.IsZero() {
		if err := a.rewrite(ctx, id, newID); err != nil {
			return fmt.Errorf("failed to record backend id %s: %w", newID, err)
		}
	}
	return a.pushed(ctx, newID)
}

func (a *adapter[T]) pushed(ctx context.Context, id schema.ID) error {
	if a.afterPushed == nil {
		return nil
	}
	return a.afterPushed(ctx, id)
}

// loadEntity never fails: callers render whatever the backend returned.
func loadEntity[T any](ctx context.Context, s *Syncer, a *adapter[T]) []T {
	if !s.Authenticated() {
		return []T{}
	}
	records, err := a.listRemote(ctx)
	if err != nil {
		s.logger.Printf("Warning: failed to load %s from backend: %v", a.entity, err)
		return []T{}
	}
	return records
}

func mergeEntity[T any](ctx context.Context, s *Syncer, a *adapter[T]) ([]T, error) {
	local, err := a.listLocal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local %s: %w", a.entity, err)
	}
	backend := loadEntity(ctx, s, a)
	return merge(a.recordKeys, backend, local, s.strategy), nil
}

// pullEntity upserts backend records locally. A local-only record with the
// same title and creation time is adopted: it takes the backend id first so
// the upsert replaces it instead of adding a duplicate.
func pullEntity[T any](ctx context.Context, s *Syncer, a *adapter[T]) (*Result, error) {
	result := &Result{Entity: a.entity, Errors: []string{}, StartedAt: s.now().UTC()}
	if !s.Authenticated() {
		return result, ErrUnauthenticated
	}

	records, err := a.listRemote(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to fetch %s: %w", a.entity, err)
	}

	for _, rec := range records {
		if err := pullOne(ctx, a, rec); err != nil {
			s.logger.Printf("Warning: failed to pull %s %q: %v", a.label, a.title(rec), err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s %q: %v", a.label, a.title(rec), err))
			continue
		}
		result.Synced++
	}

	result.Duration = s.now().UTC().Sub(result.StartedAt)
	s.logger.Printf("Pulled %s: %d ok, %d failed", a.entity, result.Synced, len(result.Errors))
	if !result.Success() {
		return result, &PartialError{Result: result}
	}
	return result, nil
}

func pullOne[T any](ctx context.Context, a *adapter[T], rec T) error {
	local, found, err := a.findByKey(ctx, a.key(rec))
	if err != nil {
		return err
	}
	if found {
		if err := a.rewrite(ctx, a.id(local), a.id(rec)); err != nil {
			return fmt.Errorf("failed to adopt local %s: %w", a.label, err)
		}
	}
	return a.upsert(ctx, rec)
}
