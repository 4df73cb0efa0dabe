package backend

import (
	"fmt"
	"net/http"
)

// TransportError is a network or HTTP failure talking to the backend.
// Status is zero when no response was received.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d (%s): %v", e.Op, e.Status, http.StatusText(e.Status), e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d (%s)", e.Op, e.Status, http.StatusText(e.Status))
	default:
		return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means the backend replied with a payload of the wrong shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("%s: decode: %v", e.Op, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError rejects input before anything is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
