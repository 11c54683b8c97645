package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
	"github.com/questlog/questlog/internal/sync"
)

// StartSession begins a timer session. Only one session runs at a time.
func (a *App) StartSession(ctx context.Context, typ schema.SessionType, taskID, goalID *schema.ID) (*schema.TimerSession, error) {
	if _, err := a.store.ActiveSession(ctx); err == nil {
		return nil, ErrSessionActive
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	if taskID != nil {
		if _, err := a.store.GetTask(ctx, *taskID); err != nil {
			return nil, fmt.Errorf("cannot attach session to task %s: %w", taskID, err)
		}
	}
	if goalID != nil {
		if _, err := a.store.GetGoal(ctx, *goalID); err != nil {
			return nil, fmt.Errorf("cannot attach session to goal %s: %w", goalID, err)
		}
	}

	now := a.clock()
	session := &schema.TimerSession{
		Type:      typ,
		TaskID:    taskID,
		GoalID:    goalID,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	a.emit(EventCreated, sync.EntitySessions, session.ID, session.Title(), session)
	return session, nil
}

// StopSession ends the running session and credits its minutes to the
// linked task.
func (a *App) StopSession(ctx context.Context, notes string) (*schema.TimerSession, error) {
	session, err := a.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	session.Stop(a.clock())
	if notes != "" {
		session.Notes = notes
	}
	if err := a.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	a.emit(EventUpdated, sync.EntitySessions, session.ID, session.Title(), session)

	if session.TaskID != nil {
		minutes := int(session.Duration.Minutes())
		if minutes > 0 {
			_, err := a.UpdateTask(ctx, *session.TaskID, func(t *schema.Task) error {
				t.AddActualMinutes(minutes)
				return nil
			})
			if err != nil && !errors.Is(err, db.ErrNotFound) {
				return session, fmt.Errorf("session stopped but failed to credit task: %w", err)
			}
		}
	}
	return session, nil
}

// ActiveSession returns the running session or ErrNoActiveSession.
func (a *App) ActiveSession(ctx context.Context) (*schema.TimerSession, error) {
	session, err := a.store.ActiveSession(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	return session, err
}

// Sessions lists local timer sessions.
func (a *App) Sessions(ctx context.Context, filter db.SessionFilter) ([]*schema.TimerSession, error) {
	return a.store.ListSessions(ctx, filter)
}

// MergedSessions returns backend sessions plus local sessions the backend
// lacks.
func (a *App) MergedSessions(ctx context.Context) ([]*schema.TimerSession, error) {
	return a.syncer.MergeSessions(ctx)
}
