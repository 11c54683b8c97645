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

// CreateTask stores a new local-only task.
func (a *App) CreateTask(ctx context.Context, task *schema.Task) (*schema.Task, error) {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = a.clock()
	}
	task.ID = schema.ID{}
	if err := a.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	a.emit(EventCreated, sync.EntityTasks, task.ID, task.Title, task)
	return task, nil
}

// Task returns one local task.
func (a *App) Task(ctx context.Context, id schema.ID) (*schema.Task, error) {
	return a.store.GetTask(ctx, id)
}

// Tasks lists local tasks.
func (a *App) Tasks(ctx context.Context, filter db.TaskFilter) ([]*schema.Task, error) {
	return a.store.ListTasks(ctx, filter)
}

// MergedTasks returns the backend tasks plus local tasks the backend lacks.
func (a *App) MergedTasks(ctx context.Context) ([]*schema.Task, error) {
	return a.syncer.MergeTasks(ctx)
}

// UpdateTask applies edit to the stored task. If the task is known to the
// backend and a token is available, the backend copy is updated too; a
// backend failure is logged and the next sync retries it.
func (a *App) UpdateTask(ctx context.Context, id schema.ID, edit func(*schema.Task) error) (*schema.Task, error) {
	task, err := a.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := edit(task); err != nil {
		return nil, err
	}
	task.UpdatedAt = a.clock()
	if err := a.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	if task.ID.IsBackend() && a.Authenticated() {
		if _, err := a.remote.UpdateTask(ctx, task.ID, task); err != nil {
			a.logger.Printf("Warning: failed to update task %s on backend: %v", task.ID, err)
		}
	}
	a.emit(EventUpdated, sync.EntityTasks, task.ID, task.Title, task)
	return task, nil
}

// ToggleTask flips completion and refreshes the progress of linked goals.
func (a *App) ToggleTask(ctx context.Context, id schema.ID) (*schema.Task, error) {
	task, err := a.UpdateTask(ctx, id, func(t *schema.Task) error {
		t.Completed = !t.Completed
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := a.recomputeGoalsFor(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes the task locally and, if possible, on the backend.
func (a *App) DeleteTask(ctx context.Context, id schema.ID) error {
	task, err := a.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	if id.IsBackend() && a.Authenticated() {
		if err := a.remote.DeleteTask(ctx, id); err != nil && !errors.Is(err, api.ErrNotFound) {
			a.logger.Printf("Warning: failed to delete task %s on backend: %v", id, err)
		}
	}
	a.emit(EventDeleted, sync.EntityTasks, id, task.Title, nil)
	return nil
}

// recomputeGoalsFor refreshes every goal that links the task.
func (a *App) recomputeGoalsFor(ctx context.Context, task *schema.Task) error {
	goals, err := a.store.ListGoals(ctx, db.GoalFilter{})
	if err != nil {
		return fmt.Errorf("failed to list goals: %w", err)
	}
	for _, goal := range goals {
		if !schema.ContainsID(goal.TaskIDs, task.ID) && !schema.ContainsID(task.GoalIDs, goal.ID) {
			continue
		}
		if _, err := a.RecomputeGoalProgress(ctx, goal.ID); err != nil {
			return err
		}
	}
	return nil
}
