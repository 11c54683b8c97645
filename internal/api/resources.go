package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/questlog/questlog/internal/schema"
)

const (
	tasksPath    = "/api/tasks"
	goalsPath    = "/api/goals"
	sessionsPath = "/api/timer-sessions"
)

func recordPath(base string, id schema.ID) (string, error) {
	if !id.IsBackend() {
		return "", fmt.Errorf("%q is not a backend id", id)
	}
	return base + "/" + url.PathEscape(id.Backend()), nil
}

// ListTasks returns every task the user owns.
func (c *Client) ListTasks(ctx context.Context) ([]*schema.Task, error) {
	var dtos []taskDTO
	if err := c.do(ctx, "list tasks", http.MethodGet, tasksPath, nil, &dtos); err != nil {
		return nil, err
	}
	tasks := make([]*schema.Task, 0, len(dtos))
	for _, d := range dtos {
		t, err := d.toSchema()
		if err != nil {
			return nil, &Error{Kind: KindOther, Op: "list tasks", Message: "failed to decode task", Err: err}
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// GetTask fetches one task by backend id.
func (c *Client) GetTask(ctx context.Context, id schema.ID) (*schema.Task, error) {
	path, err := recordPath(tasksPath, id)
	if err != nil {
		return nil, &Error{Kind: KindOther, Op: "get task", Err: err}
	}
	var d taskDTO
	if err := c.do(ctx, "get task", http.MethodGet, path, nil, &d); err != nil {
		return nil, err
	}
	return decodeOne(d.toSchema, "get task")
}

// CreateTask posts t and returns the backend's copy, which carries the new id.
func (c *Client) CreateTask(ctx context.Context, t *schema.Task) (*schema.Task, error) {
	var d taskDTO
	if err := c.do(ctx, "create task", http.MethodPost, tasksPath, taskToWire(t), &d); err != nil {
		return nil, err
	}
	return decodeOne(d.toSchema, "create task")
}

// UpdateTask replaces the remote task id with t.
func (c *Client) UpdateTask(ctx context.Context, id schema.ID, t *schema.Task) (*schema.Task, error) {
	path, err := recordPath(tasksPath, id)
	if err != nil {
		return nil, &Error{Kind: KindOther, Op: "update task", Err: err}
	}
	var d taskDTO
	if err := c.do(ctx, "update task", http.MethodPut, path, taskToWire(t), &d); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = id.Backend()
	}
	return decodeOne(d.toSchema, "update task")
}

// DeleteTask removes the remote task.
func (c *Client) DeleteTask(ctx context.Context, id schema.ID) error {
	path, err := recordPath(tasksPath, id)
	if err != nil {
		return &Error{Kind: KindOther, Op: "delete task", Err: err}
	}
	return c.do(ctx, "delete task", http.MethodDelete, path, nil, nil)
}

// ListGoals returns every goal the user owns.
func (c *Client) ListGoals(ctx context.Context) ([]*schema.Goal, error) {
	var dtos []goalDTO
	if err := c.do(ctx, "list goals", http.MethodGet, goalsPath, nil, &dtos); err != nil {
		return nil, err
	}
	goals := make([]*schema.Goal, 0, len(dtos))
	for _, d := range dtos {
		g, err := d.toSchema()
		if err != nil {
			return nil, &Error{Kind: KindOther, Op: "list goals", Message: "failed to decode goal", Err: err}
		}
		goals = append(goals, g)
	}
	return goals, nil
}

// GetGoal fetches one goal by backend id.
func (c *Client) GetGoal(ctx context.Context, id schema.ID) (*schema.Goal, error) {
	path, err := recordPath(goalsPath, id)
	if err != nil {
		return nil, &Error{Kind: KindOther, Op: "get goal", Err: err}
	}
	var d goalDTO
	if err := c.do(ctx, "get goal", http.MethodGet, path, nil, &d); err != nil {
		return nil, err
	}
	return decodeOne(d.toSchema, "get goal")
}

// CreateGoal posts g and returns the backend's copy.
func (c *Client) CreateGoal(ctx context.Context, g *schema.Goal) (*schema.Goal, error) {
	var d goalDTO
	if err := c.do(ctx, "create goal", http.MethodPost, goalsPath, goalToWire(g), &d); err != nil {
		return nil, err
	}
	return decodeOne(d.toSchema, "create goal")
}

// UpdateGoal replaces the remote goal id with g.
func (c *Client) UpdateGoal(ctx context.Context, id schema.ID, g *schema.Goal) (*schema.Goal, error) {
	path, err := recordPath(goalsPath, id)
	if err != nil {
		return nil, &Error{Kind: KindOther, Op: "update goal", Err: err}
	}
	var d goalDTO
	if err := c.do(ctx, "update goal", http.MethodPut, path, goalToWire(g), &d); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = id.Backend()
	}
	return decodeOne(d.toSchema, "update goal")
}

// DeleteGoal removes the remote goal.
func (c *Client) DeleteGoal(ctx context.Context, id schema.ID) error {
	path, err := recordPath(goalsPath, id)
	if err != nil {
		return &Error{Kind: KindOther, Op: "delete goal", Err: err}
	}
	return c.do(ctx, "delete goal", http.MethodDelete, path, nil, nil)
}

// ListSessions returns every timer session the user owns.
func (c *Client) ListSessions(ctx context.Context) ([]*schema.TimerSession, error) {
	var dtos []sessionDTO
	if err := c.do(ctx, "list timer sessions", http.MethodGet, sessionsPath, nil, &dtos); err != nil {
		return nil, err
	}
	sessions := make([]*schema.TimerSession, 0, len(dtos))
	for _, d := range dtos {
		s, err := d.toSchema()
		if err != nil {
			return nil, &Error{Kind: KindOther, Op: "list timer sessions", Message: "failed to decode session", Err: err}
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// GetSession fetches one timer session by backend id.
func (c *Client) GetSession(ctx context.Context, id schema.ID) (*schema.TimerSession, error) {
	path, err := recordPath(sessionsPath, id)
	if err != nil {
		return nil, &Error{Kind: KindOther, Op: "get timer session", Err: err}
	}
	var d sessionDTO
	if err := c.do(ctx, "get timer session", http.MethodGet, path, nil, &d); err != nil {
		return nil, err
	}
	return decodeOne(d.toSchema, "get timer session")
}

// CreateSession posts s and returns the backend's copy.
func (c *Client) CreateSession(ctx context.Context, s *schema.TimerSession) (*schema.TimerSession, error) {
	var d sessionDTO
	if err := c.do(ctx, "create timer session", http.MethodPost, sessionsPath, sessionToWire(s), &d); err != nil {
		return nil, err
	}
	return decodeOne(d.toSchema, "create timer session")
}

// UpdateSession replaces the remote session id with s.
func (c *Client) UpdateSession(ctx context.Context, id schema.ID, s *schema.TimerSession) (*schema.TimerSession, error) {
	path, err := recordPath(sessionsPath, id)
	if err != nil {
		return nil, &Error{Kind: KindOther, Op: "update timer session", Err: err}
	}
	var d sessionDTO
	if err := c.do(ctx, "update timer session", http.MethodPut, path, sessionToWire(s), &d); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = id.Backend()
	}
	return decodeOne(d.toSchema, "update timer session")
}

// DeleteSession removes the remote timer session.
func (c *Client) DeleteSession(ctx context.Context, id schema.ID) error {
	path, err := recordPath(sessionsPath, id)
	if err != nil {
		return &Error{Kind: KindOther, Op: "delete timer session", Err: err}
	}
	return c.do(ctx, "delete timer session", http.MethodDelete, path, nil, nil)
}

func decodeOne[T any](decode func() (T, error), op string) (T, error) {
	v, err := decode()
	if err != nil {
		var zero T
		return zero, &Error{Kind: KindOther, Op: op, Message: "failed to decode response", Err: err}
	}
	return v, nil
}
