package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/questlog/questlog/internal/schema"
)

// Dates travel as strings. The backend has emitted all of these layouts.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseWireTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}

func requireWireTime(s, field string) (time.Time, error) {
	t, err := parseWireTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	if t == nil {
		return time.Time{}, nil
	}
	return *t, nil
}

func formatWireTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// backendIDs keeps only ids the backend can resolve.
func backendIDs(ids []schema.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id.IsBackend() {
			out = append(out, id.Backend())
		}
	}
	return out
}

func refToWire(id *schema.ID) string {
	if id == nil || !id.IsBackend() {
		return ""
	}
	return id.Backend()
}

func refFromWire(s string) *schema.ID {
	if s == "" {
		return nil
	}
	id := schema.BackendID(s)
	return &id
}

type taskDTO struct {
	ID               string   `json:"id,omitempty"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Completed        bool     `json:"completed"`
	Priority         string   `json:"priority,omitempty"`
	Category         string   `json:"category,omitempty"`
	DueDate          string   `json:"dueDate,omitempty"`
	EstimatedMinutes *int     `json:"estimatedMinutes,omitempty"`
	ActualMinutes    *int     `json:"actualMinutes,omitempty"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	UpdatedAt        string   `json:"updatedAt,omitempty"`
	GoalIDs          []string `json:"goalIds,omitempty"`
}

func taskToWire(t *schema.Task) taskDTO {
	return taskDTO{
		Title:            t.Title,
		Description:      t.Description,
		Completed:        t.Completed,
		Priority:         string(t.Priority),
		Category:         t.Category,
		DueDate:          formatWireTime(t.DueDate),
		EstimatedMinutes: t.EstimatedMinutes,
		ActualMinutes:    t.ActualMinutes,
		CreatedAt:        formatWireTime(&t.CreatedAt),
		UpdatedAt:        formatWireTime(&t.UpdatedAt),
		GoalIDs:          backendIDs(t.GoalIDs),
	}
}

func (d taskDTO) toSchema() (*schema.Task, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("task without id")
	}
	t := &schema.Task{
		ID:               schema.BackendID(d.ID),
		Title:            d.Title,
		Description:      d.Description,
		Completed:        d.Completed,
		Priority:         schema.Priority(d.Priority),
		Category:         d.Category,
		EstimatedMinutes: d.EstimatedMinutes,
		ActualMinutes:    d.ActualMinutes,
		GoalIDs:          []schema.ID{},
	}
	var err error
	if t.DueDate, err = parseWireTime(d.DueDate); err != nil {
		return nil, fmt.Errorf("task %s dueDate: %w", d.ID, err)
	}
	if t.CreatedAt, err = requireWireTime(d.CreatedAt, "createdAt"); err != nil {
		return nil, fmt.Errorf("task %s: %w", d.ID, err)
	}
	if t.UpdatedAt, err = requireWireTime(d.UpdatedAt, "updatedAt"); err != nil {
		return nil, fmt.Errorf("task %s: %w", d.ID, err)
	}
	for _, g := range d.GoalIDs {
		t.GoalIDs = append(t.GoalIDs, schema.BackendID(g))
	}
	if _, perr := schema.ParsePriority(d.Priority); perr != nil {
		t.Priority = schema.PriorityMedium
	}
	t.SetDefaults()
	return t, nil
}

// goalDTO reads and writes only relatedTaskIds. The older numeric
// relatedTasks field holds browser-local keys that name no row in this store,
// so it is ignored.
type goalDTO struct {
	ID             string   `json:"id,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	TargetDate     string   `json:"targetDate,omitempty"`
	Completed      bool     `json:"completed"`
	Progress       int      `json:"progress"`
	Category       string   `json:"category,omitempty"`
	CreatedAt      string   `json:"createdAt,omitempty"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
	RelatedTaskIDs []string `json:"relatedTaskIds,omitempty"`
}

func goalToWire(g *schema.Goal) goalDTO {
	return goalDTO{
		Title:          g.Title,
		Description:    g.Description,
		TargetDate:     formatWireTime(g.TargetDate),
		Completed:      g.Completed,
		Progress:       g.Progress,
		Category:       g.Category,
		CreatedAt:      formatWireTime(&g.CreatedAt),
		UpdatedAt:      formatWireTime(&g.UpdatedAt),
		RelatedTaskIDs: backendIDs(g.TaskIDs),
	}
}

func (d goalDTO) toSchema() (*schema.Goal, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("goal without id")
	}
	g := &schema.Goal{
		ID:          schema.BackendID(d.ID),
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		Progress:    d.Progress,
		Category:    d.Category,
		TaskIDs:     []schema.ID{},
	}
	if g.Progress < 0 {
		g.Progress = 0
	}
	if g.Progress > 100 {
		g.Progress = 100
	}
	var err error
	if g.TargetDate, err = parseWireTime(d.TargetDate); err != nil {
		return nil, fmt.Errorf("goal %s targetDate: %w", d.ID, err)
	}
	if g.CreatedAt, err = requireWireTime(d.CreatedAt, "createdAt"); err != nil {
		return nil, fmt.Errorf("goal %s: %w", d.ID, err)
	}
	if g.UpdatedAt, err = requireWireTime(d.UpdatedAt, "updatedAt"); err != nil {
		return nil, fmt.Errorf("goal %s: %w", d.ID, err)
	}
	for _, id := range d.RelatedTaskIDs {
		if ref := schema.BackendID(id); !schema.ContainsID(g.TaskIDs, ref) {
			g.TaskIDs = append(g.TaskIDs, ref)
		}
	}
	g.SetDefaults()
	return g, nil
}

type sessionDTO struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	UserID    string `json:"userId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	GoalID    string `json:"goalId,omitempty"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime,omitempty"`
	Duration  int64  `json:"duration"` // seconds
	Completed bool   `json:"completed"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func sessionToWire(s *schema.TimerSession) sessionDTO {
	return sessionDTO{
		Type:      string(s.Type),
		UserID:    s.UserID,
		TaskID:    refToWire(s.TaskID),
		GoalID:    refToWire(s.GoalID),
		StartTime: formatWireTime(&s.StartedAt),
		EndTime:   formatWireTime(s.EndedAt),
		Duration:  int64(s.Duration / time.Second),
		Completed: s.Completed,
		Notes:     s.Notes,
		CreatedAt: formatWireTime(&s.CreatedAt),
		UpdatedAt: formatWireTime(&s.UpdatedAt),
	}
}

func (d sessionDTO) toSchema() (*schema.TimerSession, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("session without id")
	}
	s := &schema.TimerSession{
		ID:              schema.BackendID(d.ID),
		Type:            schema.SessionType(d.Type),
		UserID:          d.UserID,
		TaskID:          refFromWire(d.TaskID),
		GoalID:          refFromWire(d.GoalID),
		Duration:        time.Duration(d.Duration) * time.Second,
		Completed:       d.Completed,
		Notes:           d.Notes,
		SyncedToBackend: true,
	}
	if _, err := schema.ParseSessionType(d.Type); err != nil {
		return nil, fmt.Errorf("session %s: %w", d.ID, err)
	}
	var err error
	if s.StartedAt, err = requireWireTime(d.StartTime, "startTime"); err != nil {
		return nil, fmt.Errorf("session %s: %w", d.ID, err)
	}
	if s.EndedAt, err = parseWireTime(d.EndTime); err != nil {
		return nil, fmt.Errorf("session %s endTime: %w", d.ID, err)
	}
	if s.CreatedAt, err = requireWireTime(d.CreatedAt, "createdAt"); err != nil {
		return nil, fmt.Errorf("session %s: %w", d.ID, err)
	}
	if s.UpdatedAt, err = requireWireTime(d.UpdatedAt, "updatedAt"); err != nil {
		return nil, fmt.Errorf("session %s: %w", d.ID, err)
	}
	s.SetDefaults()
	return s, nil
}
