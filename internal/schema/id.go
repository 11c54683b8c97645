package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID identifies a record either by a locally generated number or by a
// string assigned by the backend. The zero value identifies nothing.
//
// A record stored only locally has a local ID. Once the backend accepts the
// record, its backend ID replaces the local one for good.
type ID struct {
	local   int64
	backend string
}

// LocalID returns the identifier of a local-only record.
func LocalID(n int64) ID {
	return ID{local: n}
}

// BackendID returns a backend-assigned identifier.
func BackendID(s string) ID {
	return ID{backend: s}
}

// ParseID parses command line input. All-digit strings are local IDs,
// anything else is a backend ID.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, fmt.Errorf("id is empty")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return ID{}, fmt.Errorf("local id must be positive (got %d)", n)
		}
		return LocalID(n), nil
	}
	return BackendID(s), nil
}

// IsBackend reports whether the ID was assigned by the backend.
func (id ID) IsBackend() bool { return id.backend != "" }

// IsLocal reports whether the ID is a local numeric identifier.
func (id ID) IsLocal() bool { return id.backend == "" && id.local > 0 }

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id.backend == "" && id.local == 0 }

// Local returns the local number, or 0 for backend IDs.
func (id ID) Local() int64 {
	if id.IsBackend() {
		return 0
	}
	return id.local
}

// Backend returns the backend string, or "" for local IDs.
func (id ID) Backend() string { return id.backend }

// Equal reports whether both IDs identify the same record.
func (id ID) Equal(other ID) bool { return id == other }

func (id ID) String() string {
	switch {
	case id.IsBackend():
		return id.backend
	case id.local != 0:
		return strconv.FormatInt(id.local, 10)
	default:
		return ""
	}
}

// MarshalJSON encodes local IDs as numbers and backend IDs as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case id.IsBackend():
		return json.Marshal(id.backend)
	case id.local != 0:
		return []byte(strconv.FormatInt(id.local, 10)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a number, a string or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode id: %w", err)
		}
		if s == "" {
			*id = ID{}
			return nil
		}
		*id = BackendID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("failed to decode id %s: %w", data, err)
	}
	*id = LocalID(n)
	return nil
}

// MarshalYAML keeps snapshot files readable.
func (id ID) MarshalYAML() (interface{}, error) {
	switch {
	case id.IsBackend():
		return id.backend, nil
	case id.local != 0:
		return id.local, nil
	default:
		return nil, nil
	}
}

// UnmarshalYAML accepts the same shapes as UnmarshalJSON.
func (id *ID) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*id = ID{}
	case int:
		*id = LocalID(int64(v))
	case int64:
		*id = LocalID(v)
	case string:
		*id = BackendID(v)
	default:
		return fmt.Errorf("unsupported id value %v", raw)
	}
	return nil
}

// ContainsID reports whether ids contains id.
func ContainsID(ids []ID, id ID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// ReplaceID returns ids with every occurrence of old replaced by new, and
// whether anything changed. Duplicates produced by the replacement are removed.
func ReplaceID(ids []ID, old, new ID) ([]ID, bool) {
	changed := false
	out := make([]ID, 0, len(ids))
	for _, candidate := range ids {
		if candidate == old {
			candidate = new
			changed = true
		}
		if ContainsID(out, candidate) {
			continue
		}
		out = append(out, candidate)
	}
	return out, changed
}
