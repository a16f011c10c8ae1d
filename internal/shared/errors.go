package shared

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthentication   = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Upstream errors. ErrNotFound and ErrRateLimited match ErrUpstream with [errors.Is].
	ErrUpstream    = fmt.Errorf("upstream request failed")
	ErrNotFound    = fmt.Errorf("%w: not found", ErrUpstream)
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrUpstream)

	// Input validation errors
	ErrInvalidInput = fmt.Errorf("invalid input")

	// Worker errors
	ErrPoolClosed = fmt.Errorf("worker pool closed")
	ErrInternal   = fmt.Errorf("internal error")
)

// Describer is implemented by errors that carry a short message safe to show to a client.
type Describer interface {
	Description() string
}

type describedError struct {
	kind error
	msg  string
}

func (e *describedError) Error() string       { return e.kind.Error() + ": " + e.msg }
func (e *describedError) Unwrap() error       { return e.kind }
func (e *describedError) Description() string { return e.msg }

// Errorf returns an error that matches kind with [errors.Is] and describes itself with the formatted message.
func Errorf(kind error, format string, args ...any) error {
	return &describedError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Describe reduces err to a short, client-facing description.
//
// The first [Describer] in the chain wins; otherwise the closest known sentinel is used.
// Raw transport details never leak through, unknown errors collapse to "internal error".
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var d Describer
	if errors.As(err, &d) {
		if msg := d.Description(); msg != "" {
			return msg
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout.Error()
	case errors.Is(err, context.Canceled):
		return "operation cancelled"
	}

	for _, known := range []error{
		ErrNotFound, ErrRateLimited, ErrUpstream,
		ErrNotAuthenticated, ErrAuthentication, ErrTimeout,
		ErrInvalidInput, ErrMissingConfig, ErrInvalidConfig,
		ErrPoolClosed,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInternal.Error()
}
