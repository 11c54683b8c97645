package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/questlog/questlog/internal/api"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
	"github.com/questlog/questlog/internal/sync"
)

// CreateGoal stores a goal locally and, when a token is available, pushes
// it right away. On success the goal takes its backend id; on failure it
// stays local-only until the next sync.
func (a *App) CreateGoal(ctx context.Context, goal *schema.Goal) (*schema.Goal, error) {
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = a.clock()
	}
	goal.ID = schema.ID{}
	if err := a.store.CreateGoal(ctx, goal); err != nil {
		return nil, err
	}
	a.emit(EventCreated, sync.EntityGoals, goal.ID, goal.Title, goal)

	if !a.Authenticated() {
		return goal, nil
	}
	created, err := a.remote.CreateGoal(ctx, goal)
	if err != nil {
		a.logger.Printf("Warning: goal %q saved locally only: %v", goal.Title, err)
		return goal, nil
	}
	if err := a.store.RewriteGoalID(ctx, goal.ID, created.ID); err != nil {
		return nil, fmt.Errorf("failed to record backend id for goal %q: %w", goal.Title, err)
	}
	goal.ID = created.ID
	a.emit(EventMigrated, sync.EntityGoals, goal.ID, goal.Title, goal)
	return goal, nil
}

// Goal returns one local goal.
func (a *App) Goal(ctx context.Context, id schema.ID) (*schema.Goal, error) {
	return a.store.GetGoal(ctx, id)
}

// Goals lists local goals.
func (a *App) Goals(ctx context.Context, filter db.GoalFilter) ([]*schema.Goal, error) {
	return a.store.ListGoals(ctx, filter)
}

// MergedGoals returns the backend goals plus local goals the backend lacks.
func (a *App) MergedGoals(ctx context.Context) ([]*schema.Goal, error) {
	return a.syncer.MergeGoals(ctx)
}

// UpdateGoal applies edit to the stored goal, mirroring it to the backend
// like UpdateTask.
func (a *App) UpdateGoal(ctx context.Context, id schema.ID, edit func(*schema.Goal) error) (*schema.Goal, error) {
	goal, err := a.store.GetGoal(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := edit(goal); err != nil {
		return nil, err
	}
	goal.UpdatedAt = a.clock()
	if err := a.store.UpdateGoal(ctx, goal); err != nil {
		return nil, err
	}

	if goal.ID.IsBackend() && a.Authenticated() {
		if _, err := a.remote.UpdateGoal(ctx, goal.ID, goal); err != nil {
			a.logger.Printf("Warning: failed to update goal %s on backend: %v", goal.ID, err)
		}
	}
	a.emit(EventUpdated, sync.EntityGoals, goal.ID, goal.Title, goal)
	return goal, nil
}

// SetGoalProgress sets progress by hand. 100 marks the goal completed.
func (a *App) SetGoalProgress(ctx context.Context, id schema.ID, pct int) (*schema.Goal, error) {
	return a.UpdateGoal(ctx, id, func(g *schema.Goal) error {
		return g.SetProgress(pct)
	})
}

// LinkTask records the relationship on both the goal and the task, then
// recomputes the goal's progress.
func (a *App) LinkTask(ctx context.Context, goalID, taskID schema.ID) (*schema.Goal, error) {
	task, err := a.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	goal, err := a.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}

	if !schema.ContainsID(task.GoalIDs, goal.ID) {
		if _, err := a.UpdateTask(ctx, task.ID, func(t *schema.Task) error {
			t.GoalIDs = append(t.GoalIDs, goal.ID)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	if !schema.ContainsID(goal.TaskIDs, task.ID) {
		if _, err := a.UpdateGoal(ctx, goal.ID, func(g *schema.Goal) error {
			g.TaskIDs = append(g.TaskIDs, task.ID)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return a.RecomputeGoalProgress(ctx, goal.ID)
}

// RecomputeGoalProgress sets progress to the completed share of the linked
// tasks. Goals without linked tasks are left alone.
func (a *App) RecomputeGoalProgress(ctx context.Context, id schema.ID) (*schema.Goal, error) {
	goal, err := a.store.GetGoal(ctx, id)
	if err != nil {
		return nil, err
	}

	var linked []*schema.Task
	for _, taskID := range goal.TaskIDs {
		task, err := a.store.GetTask(ctx, taskID)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		linked = append(linked, task)
	}

	before, wasDone := goal.Progress, goal.Completed
	goal.ProgressFromTasks(linked)
	if goal.Progress == before && goal.Completed == wasDone {
		return goal, nil
	}
	progress, completed := goal.Progress, goal.Completed
	return a.UpdateGoal(ctx, goal.ID, func(g *schema.Goal) error {
		g.Progress = progress
		g.Completed = completed
		return nil
	})
}

// DeleteGoal removes the goal locally and, if possible, on the backend.
func (a *App) DeleteGoal(ctx context.Context, id schema.ID) error {
	goal, err := a.store.GetGoal(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteGoal(ctx, id); err != nil {
		return err
	}
	if id.IsBackend() && a.Authenticated() {
		if err := a.remote.DeleteGoal(ctx, id); err != nil && !errors.Is(err, api.ErrNotFound) {
			a.logger.Printf("Warning: failed to delete goal %s on backend: %v", id, err)
		}
	}
	a.emit(EventDeleted, sync.EntityGoals, id, goal.Title, nil)
	return nil
}
