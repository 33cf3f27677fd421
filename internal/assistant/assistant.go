package assistant

import (
	"context"
	"errors"
	"fmt"
)

type Question struct {
	Message   string
	SessionID string // empty starts a new conversation
	Metadata  map[string]any
}

type Answer struct {
	Text      string
	SessionID string
}

// Assistant answers one question per call. Implementations make exactly one
// upstream attempt.
type Assistant interface {
	Ask(ctx context.Context, q Question) (*Answer, error)
}

var (
	ErrNotConfigured       = errors.New("assistant not configured")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamStatus      = errors.New("upstream error status")
	ErrMalformedResponse   = errors.New("malformed upstream response")
)

// Error carries the failure kind (one of the Err* sentinels) plus details.
type Error struct {
	Kind   error
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }
