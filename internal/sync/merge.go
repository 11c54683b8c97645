package sync

import (
	"fmt"
	"strings"

	"github.com/questlog/questlog/internal/schema"
)

// Strategy decides which copy is shown when a local record and a backend
// record describe the same thing.
type Strategy string

const (
	// BackendWins always keeps the backend copy.
	BackendWins Strategy = "backend-wins"

	// NewestWins keeps the local copy when its UpdatedAt is strictly later.
	NewestWins Strategy = "newest-wins"
)

// ParseStrategy validates a strategy name. Empty input yields BackendWins.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return BackendWins, nil
	case BackendWins, NewestWins:
		return st, nil
	default:
		return "", fmt.Errorf("merge strategy must be %s or %s (got %q)", BackendWins, NewestWins, s)
	}
}

// merge returns the backend records in order, followed by the local records
// the backend doesn't have. A local record collides with a backend record
// when the ids match or when title and creation time match. Neither input
// slice is modified.
func merge[T any](a recordKeys[T], backend, local []T, strategy Strategy) []T {
	out := make([]T, 0, len(backend)+len(local))
	byID := make(map[schema.ID]int, len(backend))
	byKey := make(map[string]int, len(backend))

	for _, rec := range backend {
		idx := len(out)
		out = append(out, rec)
		if id := a.id(rec); !id.IsZero() {
			byID[id] = idx
		}
		if _, dup := byKey[a.key(rec)]; !dup {
			byKey[a.key(rec)] = idx
		}
	}

	for _, rec := range local {
		id := a.id(rec)
		if id.IsZero() {
			out = append(out, rec)
			continue
		}
		idx, seen := byID[id]
		if !seen {
			idx, seen = byKey[a.key(rec)]
		}
		if !seen {
			out = append(out, rec)
			continue
		}
		if strategy == NewestWins && a.updatedAt(rec).After(a.updatedAt(out[idx])) {
			out[idx] = rec
		}
	}
	return out
}

// MergeTaskLists merges task slices without touching storage or network.
func MergeTaskLists(backend, local []*schema.Task, strategy Strategy) []*schema.Task {
	return merge(taskKeys, backend, local, strategy)
}

// MergeGoalLists merges goal slices without touching storage or network.
func MergeGoalLists(backend, local []*schema.Goal, strategy Strategy) []*schema.Goal {
	return merge(goalKeys, backend, local, strategy)
}

// MergeSessionLists merges session slices without touching storage or network.
func MergeSessionLists(backend, local []*schema.TimerSession, strategy Strategy) []*schema.TimerSession {
	return merge(sessionKeys, backend, local, strategy)
}
