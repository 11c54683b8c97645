package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/questlog/questlog/internal/app"
	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
	qsync "github.com/questlog/questlog/internal/sync"
)

// RecordUpdateData describes one record change.
type RecordUpdateData struct {
	ID        string `json:"id"`
	Action    string `json:"action"` // created, updated, deleted, migrated
	Title     string `json:"title,omitempty"`
	Local     bool   `json:"local"`
	Completed bool   `json:"completed,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Progress  int    `json:"progress,omitempty"`
	Type      string `json:"type,omitempty"`
	Active    bool   `json:"active,omitempty"`
}

// SyncStateData reports an entity's sync state.
type SyncStateData struct {
	Entity string `json:"entity"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

// SyncCompleteData summarizes one finished sync.
type SyncCompleteData struct {
	Entity   string        `json:"entity"`
	Synced   int           `json:"synced"`
	Failed   int           `json:"failed"`
	Errors   []string      `json:"errors,omitempty"`
	Duration time.Duration `json:"duration"`
}

// StatsData contains store statistics.
type StatsData struct {
	db.Counts
	ActiveSession bool `json:"active_session"`
}

// Counter reports store counts. *db.DB satisfies it.
type Counter interface {
	Counts(ctx context.Context) (db.Counts, error)
}

// Handler turns app and sync notifications into dashboard messages.
// It implements app.Notifier and sync.Notifier.
type Handler struct {
	server  *Server
	counter Counter
	logger  *log.Logger

	mu    sync.Mutex
	stats StatsData
}

var (
	_ app.Notifier   = (*Handler)(nil)
	_ qsync.Notifier = (*Handler)(nil)
)

// NewHandler creates a handler broadcasting through server. Stats are read
// from counter, which may be nil.
func NewHandler(server *Server, counter Counter, logger *log.Logger) *Handler {
	if logger == nil {
		logger = DefaultConfig().Logger
	}
	h := &Handler{
		server:  server,
		counter: counter,
		logger:  logger,
	}
	server.SetWelcome(h.statsMessage)
	h.RefreshStats(context.Background())
	return h
}

// RecordChanged handles task, goal and session changes.
func (h *Handler) RecordChanged(event app.Event) {
	data := RecordUpdateData{
		ID:     event.ID.String(),
		Action: string(event.Kind),
		Title:  event.Title,
		Local:  !event.ID.IsBackend(),
	}

	var typ MessageType
	switch event.Entity {
	case qsync.EntityTasks:
		typ = MessageTypeTaskUpdate
		if t, ok := event.Record.(*schema.Task); ok && t != nil {
			data.Completed = t.Completed
			data.Priority = string(t.Priority)
		}
	case qsync.EntityGoals:
		typ = MessageTypeGoalUpdate
		if g, ok := event.Record.(*schema.Goal); ok && g != nil {
			data.Completed = g.Completed
			data.Progress = g.Progress
		}
	case qsync.EntitySessions:
		typ = MessageTypeSessionUpdate
		if s, ok := event.Record.(*schema.TimerSession); ok && s != nil {
			data.Completed = s.Completed
			data.Type = string(s.Type)
			data.Active = s.Active()
		}
	default:
		h.logger.Printf("Warning: change for unknown entity %q", event.Entity)
		return
	}

	h.logger.Printf("%s %s: %s (%s)", event.Entity, event.Kind, event.ID, event.Title)
	h.send(typ, data)
	h.RefreshStats(context.Background())
}

// SyncStateChanged handles sync state transitions.
func (h *Handler) SyncStateChanged(status qsync.Status) {
	h.send(MessageTypeSyncState, SyncStateData{
		Entity: string(status.Entity),
		State:  status.State.String(),
		Error:  status.LastError,
	})
}

// SyncCompleted handles finished syncs.
func (h *Handler) SyncCompleted(result *qsync.Result) {
	if result == nil {
		return
	}
	h.logger.Printf("Sync complete: %s, %d synced, %d failed in %v",
		result.Entity, result.Synced, len(result.Errors), result.Duration)
	h.send(MessageTypeSyncComplete, SyncCompleteData{
		Entity:   string(result.Entity),
		Synced:   result.Synced,
		Failed:   len(result.Errors),
		Errors:   result.Errors,
		Duration: result.Duration,
	})
	h.RefreshStats(context.Background())
}

// RefreshStats recounts the store and broadcasts the result.
func (h *Handler) RefreshStats(ctx context.Context) {
	if h.counter == nil {
		return
	}
	counts, err := h.counter.Counts(ctx)
	if err != nil {
		h.logger.Printf("Failed to count records: %v", err)
		return
	}

	h.mu.Lock()
	h.stats = StatsData{Counts: counts, ActiveSession: counts.ActiveSessions > 0}
	stats := h.stats
	h.mu.Unlock()

	h.send(MessageTypeStats, stats)
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) statsMessage() Message {
	data, err := json.Marshal(h.GetStats())
	if err != nil {
		return Message{Type: MessageTypeStats}
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(typ MessageType, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}
