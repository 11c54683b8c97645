package schema

import (
	"fmt"
	"time"
)

// MaxTitleLength bounds titles for every record type.
const MaxTitleLength = 500

// Priority ranks tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority validates a priority name. Empty input yields the default.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("priority must be low, medium or high (got %q)", s)
	}
}

// Rank orders priorities from high (0) to low (2).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Task is a unit of work.
type Task struct {
	ID          ID       `json:"id" yaml:"id,omitempty"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Completed   bool     `json:"completed" yaml:"completed"`
	Priority    Priority `json:"priority" yaml:"priority"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`

	DueDate          *time.Time `json:"dueDate,omitempty" yaml:"due_date,omitempty"`
	EstimatedMinutes *int       `json:"estimatedMinutes,omitempty" yaml:"estimated_minutes,omitempty"`
	ActualMinutes    *int       `json:"actualMinutes,omitempty" yaml:"actual_minutes,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`

	GoalIDs []ID `json:"goalIds,omitempty" yaml:"goal_ids,omitempty"`
}

// Validate checks field values.
func (t *Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(t.Title))
	}
	if _, err := ParsePriority(string(t.Priority)); err != nil {
		return err
	}
	if t.EstimatedMinutes != nil && *t.EstimatedMinutes < 0 {
		return fmt.Errorf("estimated minutes must not be negative")
	}
	if t.ActualMinutes != nil && *t.ActualMinutes < 0 {
		return fmt.Errorf("actual minutes must not be negative")
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.GoalIDs == nil {
		t.GoalIDs = []ID{}
	}
}

// Touch sets UpdatedAt to now.
func (t *Task) Touch() {
	t.UpdatedAt = time.Now().UTC()
}

// DedupeKey identifies the task by title and creation time.
func (t *Task) DedupeKey() string {
	return dedupeKey(t.Title, t.CreatedAt)
}

// AddActualMinutes accumulates tracked time.
func (t *Task) AddActualMinutes(n int) {
	if n <= 0 {
		return
	}
	total := n
	if t.ActualMinutes != nil {
		total += *t.ActualMinutes
	}
	t.ActualMinutes = &total
}

func dedupeKey(title string, createdAt time.Time) string {
	return title + "\x00" + createdAt.UTC().Format(time.RFC3339Nano)
}
