package tidal

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/tidal-mcp/internal/shared"
)

// APIError is a non-2xx TIDAL response, or a request that never produced one (Status 0).
type APIError struct {
	Op          string
	Status      int
	SubStatus   int
	UserMessage string
	cause       error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("tidal %s: request failed: %v", e.Op, e.cause)
	}
	if e.UserMessage != "" {
		return fmt.Sprintf("tidal %s: status %d (%d): %s", e.Op, e.Status, e.SubStatus, e.UserMessage)
	}
	return fmt.Sprintf("tidal %s: status %d", e.Op, e.Status)
}

// Description is the short message shown to clients.
func (e *APIError) Description() string {
	switch {
	case e.Status == 0 && errors.Is(e.cause, context.DeadlineExceeded):
		return "request to TIDAL timed out"
	case e.Status == 0:
		return "TIDAL could not be reached"
	case e.UserMessage != "":
		return e.UserMessage
	case e.Status == http.StatusNotFound:
		return "not found"
	default:
		return fmt.Sprintf("TIDAL returned %d %s", e.Status, http.StatusText(e.Status))
	}
}

// Unwrap maps the status onto the shared sentinels and exposes the transport cause.
func (e *APIError) Unwrap() []error {
	var kind error
	switch e.Status {
	case http.StatusNotFound:
		kind = shared.ErrNotFound
	case http.StatusTooManyRequests:
		kind = shared.ErrRateLimited
	default:
		kind = shared.ErrUpstream
	}
	if e.cause != nil {
		return []error{kind, e.cause}
	}
	return []error{kind}
}
