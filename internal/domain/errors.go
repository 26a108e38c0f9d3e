package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClassificationAmbiguous marks a decision that stayed low-confidence
	// after the fallback tier. It is reported, never returned to callers.
	ErrClassificationAmbiguous = errors.New("classification ambiguous")

	// ErrResponderUnavailable is a responder timeout or failure.
	ErrResponderUnavailable = errors.New("responder unavailable")

	// ErrUnsafeQuery is any query safety gate failure.
	ErrUnsafeQuery = errors.New("unsafe query rejected")

	// ErrStorageTimeout means query execution exceeded its bound.
	ErrStorageTimeout = errors.New("storage timeout")

	// ErrSessionConflict means another request holds the session.
	ErrSessionConflict = errors.New("session conflict")

	// ErrUnknownResponder is returned for an override naming no registered responder.
	ErrUnknownResponder = errors.New("unknown responder")

	// ErrSessionNotFound is returned by session stores for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
)

// Error kinds reported in OutcomeMeta.ErrorKind.
const (
	KindAmbiguous   = "classification_ambiguous"
	KindUnavailable = "responder_unavailable"
	KindUnsafeQuery = "unsafe_query_rejected"
	KindTimeout     = "storage_timeout"
	KindConflict    = "session_conflict"
)

// ConflictError is returned when a session is busy and the caller should retry.
type ConflictError struct {
	SessionID  string
	RetryAfter time.Duration
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %s busy, retry after %s", e.SessionID, e.RetryAfter)
}

func (e *ConflictError) Unwrap() error { return ErrSessionConflict }

// ErrorKind maps an error to its taxonomy kind, or "" if it has none.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsafeQuery):
		return KindUnsafeQuery
	case errors.Is(err, ErrStorageTimeout):
		return KindTimeout
	case errors.Is(err, ErrSessionConflict):
		return KindConflict
	case errors.Is(err, ErrClassificationAmbiguous):
		return KindAmbiguous
	default:
		return KindUnavailable
	}
}
