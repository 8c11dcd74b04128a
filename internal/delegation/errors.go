package delegation

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable means the target agent has no deployed channel or
// profile in the workspace, e.g. it was disabled after deployment.
// Callers treat this as "delegation unavailable", not a transport error.
var ErrUnavailable = errors.New("delegation unavailable")

// TimeoutError reports that a specialist did not respond before the
// deadline. Terminal for the request id: a retry must mint a new id.
type TimeoutError struct {
	RequestID string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("the specialist did not respond in time (request %s, waited %s)", e.RequestID, e.Timeout)
}

// TransportError wraps a failure of the underlying store or feed. It is
// surfaced verbatim; retry policy belongs to the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("delegation transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
