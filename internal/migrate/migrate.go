// Package migrate exports the local store to portable snapshots and imports
// them back.
//
// Two formats are supported: a single YAML document, and JSONL with one
// {"kind": ..., "record": ...} object per line. Imported records are always
// created local-only; they reach the backend on the next sync.
package migrate

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/questlog/questlog/internal/db"
	"github.com/questlog/questlog/internal/schema"
)

// Format is a snapshot encoding.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSONL Format = "jsonl"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown format %q (want yaml or jsonl)", s)
	}
}

// FormatFromPath guesses the format from a file extension, falling back to
// def.
func FormatFromPath(path string, def Format) Format {
	if f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), ".")); err == nil {
		return f
	}
	return def
}

// Snapshot is the full contents of a store.
type Snapshot struct {
	Version    int                    `yaml:"version"`
	ExportedAt time.Time              `yaml:"exported_at"`
	Tasks      []*schema.Task         `yaml:"tasks"`
	Goals      []*schema.Goal         `yaml:"goals"`
	Sessions   []*schema.TimerSession `yaml:"sessions"`
}

const snapshotVersion = 1

// Result contains statistics about an import.
type Result struct {
	Tasks    int      `json:"tasks"`
	Goals    int      `json:"goals"`
	Sessions int      `json:"sessions"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// Export writes every local record to w.
func Export(ctx context.Context, store *db.DB, w io.Writer, format Format) error {
	snap, err := loadSnapshot(ctx, store)
	if err != nil {
		return err
	}
	switch format {
	case FormatYAML:
		return writeYAML(w, snap)
	case FormatJSONL:
		return writeJSONL(w, snap)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Import reads a snapshot from r into the store.
func Import(ctx context.Context, store *db.DB, r io.Reader, format Format) (*Result, error) {
	var (
		snap *Snapshot
		err  error
	)
	switch format {
	case FormatYAML:
		snap, err = readYAML(r)
	case FormatJSONL:
		snap, err = readJSONL(r)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return importSnapshot(ctx, store, snap)
}

func loadSnapshot(ctx context.Context, store *db.DB) (*Snapshot, error) {
	tasks, err := store.ListTasks(ctx, db.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	goals, err := store.ListGoals(ctx, db.GoalFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	sessions, err := store.ListSessions(ctx, db.SessionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return &Snapshot{
		Version:    snapshotVersion,
		ExportedAt: time.Now().UTC(),
		Tasks:      tasks,
		Goals:      goals,
		Sessions:   sessions,
	}, nil
}

// idMap translates snapshot ids to the ids the records got in this store.
type idMap map[schema.ID]schema.ID

// keyIndex maps dedupe keys of records already in the store to their ids.
type keyIndex struct {
	tasks    map[string]schema.ID
	goals    map[string]schema.ID
	sessions map[string]schema.ID
}

func indexStore(ctx context.Context, store *db.DB) (*keyIndex, error) {
	snap, err := loadSnapshot(ctx, store)
	if err != nil {
		return nil, err
	}
	idx := &keyIndex{
		tasks:    make(map[string]schema.ID, len(snap.Tasks)),
		goals:    make(map[string]schema.ID, len(snap.Goals)),
		sessions: make(map[string]schema.ID, len(snap.Sessions)),
	}
	for _, t := range snap.Tasks {
		idx.tasks[t.DedupeKey()] = t.ID
	}
	for _, g := range snap.Goals {
		idx.goals[g.DedupeKey()] = g.ID
	}
	for _, s := range snap.Sessions {
		idx.sessions[s.DedupeKey()] = s.ID
	}
	return idx, nil
}

// importSnapshot creates tasks, then goals, then sessions, rewriting the
// references between them as ids change. A reference outside the snapshot
// survives only if it is a backend id already present in the store.
func importSnapshot(ctx context.Context, store *db.DB, snap *Snapshot) (*Result, error) {
	idx, err := indexStore(ctx, store)
	if err != nil {
		return nil, err
	}

	result := &Result{Errors: []string{}}
	taskIDs := idMap{}
	goalIDs := idMap{}
	pendingGoalRefs := map[schema.ID][]schema.ID{} // new task id -> snapshot goal ids

	for _, t := range snap.Tasks {
		if t == nil {
			continue
		}
		if existing, ok := idx.tasks[t.DedupeKey()]; ok {
			taskIDs[t.ID] = existing
			result.Skipped++
			continue
		}

		task := *t
		task.ID = schema.ID{}
		task.GoalIDs = nil
		if err := store.CreateTask(ctx, &task); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("task %q: %v", t.Title, err))
			continue
		}
		idx.tasks[task.DedupeKey()] = task.ID
		taskIDs[t.ID] = task.ID
		if len(t.GoalIDs) > 0 {
			pendingGoalRefs[task.ID] = t.GoalIDs
		}
		result.Tasks++
	}

	for _, g := range snap.Goals {
		if g == nil {
			continue
		}
		if existing, ok := idx.goals[g.DedupeKey()]; ok {
			goalIDs[g.ID] = existing
			result.Skipped++
			continue
		}

		goal := *g
		goal.ID = schema.ID{}
		goal.TaskIDs = remapAll(ctx, g.TaskIDs, taskIDs, taskExists(store))
		if err := store.CreateGoal(ctx, &goal); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("goal %q: %v", g.Title, err))
			continue
		}
		idx.goals[goal.DedupeKey()] = goal.ID
		goalIDs[g.ID] = goal.ID
		result.Goals++
	}

	for taskID, refs := range pendingGoalRefs {
		ids := remapAll(ctx, refs, goalIDs, goalExists(store))
		if len(ids) == 0 {
			continue
		}
		task, err := store.GetTask(ctx, taskID)
		if err != nil {
			return result, err
		}
		task.GoalIDs = ids
		if err := store.UpdateTask(ctx, task); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("task %q: %v", task.Title, err))
		}
	}

	for _, s := range snap.Sessions {
		if s == nil {
			continue
		}
		if _, ok := idx.sessions[s.DedupeKey()]; ok {
			result.Skipped++
			continue
		}

		session := *s
		session.ID = schema.ID{}
		session.SyncedToBackend = false
		session.TaskID = remapOne(ctx, s.TaskID, taskIDs, taskExists(store))
		session.GoalID = remapOne(ctx, s.GoalID, goalIDs, goalExists(store))
		if err := store.CreateSession(ctx, &session); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("timer session %q: %v", s.Title(), err))
			continue
		}
		idx.sessions[session.DedupeKey()] = session.ID
		result.Sessions++
	}

	return result, nil
}

type existsFunc func(ctx context.Context, id schema.ID) bool

func taskExists(store *db.DB) existsFunc {
	return func(ctx context.Context, id schema.ID) bool {
		_, err := store.GetTask(ctx, id)
		return err == nil
	}
}

func goalExists(store *db.DB) existsFunc {
	return func(ctx context.Context, id schema.ID) bool {
		_, err := store.GetGoal(ctx, id)
		return err == nil
	}
}

func remapOne(ctx context.Context, id *schema.ID, m idMap, exists existsFunc) *schema.ID {
	if id == nil || id.IsZero() {
		return nil
	}
	if mapped, ok := m[*id]; ok {
		return &mapped
	}
	if id.IsBackend() && exists(ctx, *id) {
		kept := *id
		return &kept
	}
	return nil
}

func remapAll(ctx context.Context, ids []schema.ID, m idMap, exists existsFunc) []schema.ID {
	var out []schema.ID
	for i := range ids {
		if mapped := remapOne(ctx, &ids[i], m, exists); mapped != nil && !schema.ContainsID(out, *mapped) {
			out = append(out, *mapped)
		}
	}
	return out
}
