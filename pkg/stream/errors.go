package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportUnavailable is matched by every failure to obtain a
	// readable stream: connection errors, non-2xx responses and missing
	// bodies.
	ErrTransportUnavailable = errors.New("stream transport unavailable")

	// ErrStreamUnavailable is returned when the server answered without a
	// response body. It also matches ErrTransportUnavailable.
	ErrStreamUnavailable = fmt.Errorf("%w: response has no body", ErrTransportUnavailable)

	// ErrAborted is returned when the caller's context ends a stream early.
	ErrAborted = errors.New("stream aborted")
)

// TransportError describes a failed attempt to open a stream.
type TransportError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// Status is the HTTP status line text, if any.
	Status string

	// Err is the underlying cause, if any.
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0 && e.Status != "":
		return "HTTP " + e.Status
	case e.StatusCode != 0:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", ErrTransportUnavailable, e.Err)
	default:
		return ErrTransportUnavailable.Error()
	}
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransportUnavailable.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportUnavailable
}

// aborted wraps a context error so it matches both ErrAborted and the
// original context error.
func aborted(cause error) error {
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}
