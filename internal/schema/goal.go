package schema

import (
	"fmt"
	"time"
)

// Goal groups tasks under a target.
type Goal struct {
	ID          ID         `json:"id" yaml:"id,omitempty"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	TargetDate  *time.Time `json:"targetDate,omitempty" yaml:"target_date,omitempty"`
	Completed   bool       `json:"completed" yaml:"completed"`
	Progress    int        `json:"progress" yaml:"progress"` // 0-100
	Category    string     `json:"category,omitempty" yaml:"category,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`

	TaskIDs []ID `json:"taskIds,omitempty" yaml:"task_ids,omitempty"`
}

// Validate checks field values.
func (g *Goal) Validate() error {
	if g.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(g.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(g.Title))
	}
	if g.Progress < 0 || g.Progress > 100 {
		return fmt.Errorf("progress must be between 0 and 100 (got %d)", g.Progress)
	}
	if g.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if g.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (g *Goal) SetDefaults() {
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = g.CreatedAt
	}
	if g.TaskIDs == nil {
		g.TaskIDs = []ID{}
	}
}

// Touch sets UpdatedAt to now.
func (g *Goal) Touch() {
	g.UpdatedAt = time.Now().UTC()
}

// DedupeKey identifies the goal by title and creation time.
func (g *Goal) DedupeKey() string {
	return dedupeKey(g.Title, g.CreatedAt)
}

// SetProgress stores a percentage and keeps Completed consistent with it.
func (g *Goal) SetProgress(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("progress must be between 0 and 100 (got %d)", pct)
	}
	g.Progress = pct
	g.Completed = pct == 100
	return nil
}

// ProgressFromTasks recomputes progress as the completed share of the linked
// tasks found in tasks. Goals without linked tasks keep their progress.
func (g *Goal) ProgressFromTasks(tasks []*Task) {
	var linked, done int
	for _, t := range tasks {
		if !ContainsID(g.TaskIDs, t.ID) {
			continue
		}
		linked++
		if t.Completed {
			done++
		}
	}
	if linked == 0 {
		return
	}
	_ = g.SetProgress(done * 100 / linked)
}
