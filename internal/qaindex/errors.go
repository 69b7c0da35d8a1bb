package qaindex

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrPersistence = errors.New("persistence failed")

	// ErrInconsistent is returned by Verify when the indices or metadata
	// disagree with the session log.
	ErrInconsistent = errors.New("qaindex: document inconsistent")
)

// NotFoundError reports an unknown session, seq, topic or hash.
type NotFoundError struct {
	Entity    string // "session", "entry", "topic" or "hash"
	SessionID string
	Seq       int
	Key       string
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	b.WriteString("qaindex: ")
	b.WriteString(e.Entity)
	switch {
	case e.Key != "":
		fmt.Fprintf(&b, " %q", e.Key)
	case e.Seq > 0:
		fmt.Fprintf(&b, " %s#%d", e.SessionID, e.Seq)
	case e.SessionID != "":
		fmt.Fprintf(&b, " %q", e.SessionID)
	}
	b.WriteString(" not found")
	return b.String()
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports rejected input.
type ValidationError struct {
	Field     string
	Reason    string
	SessionID string
	Seq       int
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("qaindex: invalid ")
	b.WriteString(e.Field)
	switch {
	case e.Seq > 0:
		fmt.Fprintf(&b, " for %s#%d", e.SessionID, e.Seq)
	case e.SessionID != "":
		fmt.Fprintf(&b, " for session %q", e.SessionID)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PersistenceError reports an unreadable, corrupt or unwritable snapshot.
type PersistenceError struct {
	Op   string // "read", "decode", "encode" or "write"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("qaindex: %s snapshot %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("qaindex: %s snapshot: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Kind classifies an error for exit codes and API status.
type Kind int

const (
	KindNone Kind = iota
	KindOther
	KindNotFound
	KindValidation
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	default:
		return "other"
	}
}

// KindOf maps err onto the error taxonomy.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindOther
	}
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func invalidEntry(sessionID string, seq int, field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, SessionID: sessionID, Seq: seq}
}

func sessionNotFound(id string) *NotFoundError {
	return &NotFoundError{Entity: "session", SessionID: id}
}

func entryNotFound(id string, seq int) *NotFoundError {
	return &NotFoundError{Entity: "entry", SessionID: id, Seq: seq}
}
