package migrate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/questlog/questlog/internal/schema"
)

// Record kinds used in JSONL snapshots.
const (
	KindTask    = "task"
	KindGoal    = "goal"
	KindSession = "session"
)

// line is one JSONL entry.
type line struct {
	Kind   string          `json:"kind"`
	Record json.RawMessage `json:"record"`
}

func writeYAML(w io.Writer, snap *Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

func readYAML(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
		if err == io.EOF {
			return &snap, nil
		}
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}
	if snap.Version > snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported version %d", snap.Version, snapshotVersion)
	}
	return &snap, nil
}

func writeJSONL(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	write := func(kind string, record interface{}) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", kind, err)
		}
		return enc.Encode(line{Kind: kind, Record: data})
	}

	for _, t := range snap.Tasks {
		if err := write(KindTask, t); err != nil {
			return err
		}
	}
	for _, g := range snap.Goals {
		if err := write(KindGoal, g); err != nil {
			return err
		}
	}
	for _, s := range snap.Sessions {
		if err := write(KindSession, s); err != nil {
			return err
		}
	}
	return nil
}

func readJSONL(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{Version: snapshotVersion}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var l line
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		switch l.Kind {
		case KindTask:
			var t schema.Task
			if err := json.Unmarshal(l.Record, &t); err != nil {
				return nil, fmt.Errorf("invalid task at line %d: %w", lineNum, err)
			}
			snap.Tasks = append(snap.Tasks, &t)
		case KindGoal:
			var g schema.Goal
			if err := json.Unmarshal(l.Record, &g); err != nil {
				return nil, fmt.Errorf("invalid goal at line %d: %w", lineNum, err)
			}
			snap.Goals = append(snap.Goals, &g)
		case KindSession:
			var s schema.TimerSession
			if err := json.Unmarshal(l.Record, &s); err != nil {
				return nil, fmt.Errorf("invalid session at line %d: %w", lineNum, err)
			}
			snap.Sessions = append(snap.Sessions, &s)
		default:
			return nil, fmt.Errorf("unknown kind %q at line %d", l.Kind, lineNum)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read jsonl: %w", err)
	}
	return snap, nil
}
