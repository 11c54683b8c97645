package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched by *Error through errors.Is.
var (
	// ErrNotFound means the backend has no record with the requested id.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized means the backend rejected the bearer credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// Kind classifies a failed request.
type Kind int

const (
	// KindOther covers transport failures, server errors and rejected input.
	KindOther Kind = iota
	// KindNotFound is a 404 from the backend.
	KindNotFound
	// KindUnauthorized is a 401 or 403 from the backend.
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "other"
	}
}

// Error is returned by every Client method that fails.
type Error struct {
	Kind    Kind
	Op      string // e.g. "get task"
	Status  int    // HTTP status, 0 for transport failures
	Message string // backend "error" field or transport message
	Err     error  // underlying transport or decoding error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, msg, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) and errors.Is(err, ErrUnauthorized)
// match on Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	}
	return false
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	default:
		return KindOther
	}
}
