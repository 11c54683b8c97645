package schema

import (
	"fmt"
	"time"
)

// SessionType is the kind of timer session.
type SessionType string

const (
	SessionFocus SessionType = "focus"
	SessionDeep  SessionType = "deep"
	SessionBreak SessionType = "break"
)

// ParseSessionType validates a session type name. Empty input yields focus.
func ParseSessionType(s string) (SessionType, error) {
	switch st := SessionType(s); st {
	case "":
		return SessionFocus, nil
	case SessionFocus, SessionDeep, SessionBreak:
		return st, nil
	default:
		return "", fmt.Errorf("session type must be focus, deep or break (got %q)", s)
	}
}

// DefaultDuration is the planned length of a session of this type.
func (st SessionType) DefaultDuration() time.Duration {
	switch st {
	case SessionDeep:
		return 50 * time.Minute
	case SessionBreak:
		return 5 * time.Minute
	default:
		return 25 * time.Minute
	}
}

// TimerSession is one run of the focus timer.
type TimerSession struct {
	ID     ID          `json:"id" yaml:"id,omitempty"`
	Type   SessionType `json:"type" yaml:"type"`
	UserID string      `json:"userId,omitempty" yaml:"user_id,omitempty"`
	TaskID *ID         `json:"taskId,omitempty" yaml:"task_id,omitempty"`
	GoalID *ID         `json:"goalId,omitempty" yaml:"goal_id,omitempty"`

	StartedAt time.Time     `json:"startTime" yaml:"started_at"`
	EndedAt   *time.Time    `json:"endTime,omitempty" yaml:"ended_at,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Completed bool          `json:"completed" yaml:"completed"`
	Notes     string        `json:"notes,omitempty" yaml:"notes,omitempty"`

	SyncedToBackend bool `json:"syncedToBackend" yaml:"synced_to_backend"`

	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

// Title names the session in sync reports.
func (s *TimerSession) Title() string {
	return fmt.Sprintf("%s session %s", s.Type, s.StartedAt.UTC().Format(time.RFC3339))
}

// Active reports whether the session is still running.
func (s *TimerSession) Active() bool {
	return s.EndedAt == nil
}

// Validate checks field values.
func (s *TimerSession) Validate() error {
	if _, err := ParseSessionType(string(s.Type)); err != nil {
		return err
	}
	if s.StartedAt.IsZero() {
		return fmt.Errorf("start time is required")
	}
	if s.EndedAt != nil && s.EndedAt.Before(s.StartedAt) {
		return fmt.Errorf("end time must not be before start time")
	}
	if s.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if s.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (s *TimerSession) SetDefaults() {
	if s.Type == "" {
		s.Type = SessionFocus
	}
	now := time.Now().UTC()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.StartedAt
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
}

// Touch sets UpdatedAt to now.
func (s *TimerSession) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Stop ends the session at the given time. A session counts as completed
// when it ran for at least its type's default duration.
func (s *TimerSession) Stop(at time.Time) {
	at = at.UTC()
	if at.Before(s.StartedAt) {
		at = s.StartedAt
	}
	s.EndedAt = &at
	s.Duration = at.Sub(s.StartedAt)
	s.Completed = s.Duration >= s.Type.DefaultDuration()
	s.UpdatedAt = at
}

// DedupeKey identifies the session by its title and creation time.
func (s *TimerSession) DedupeKey() string {
	return dedupeKey(s.Title(), s.CreatedAt)
}
