package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/reflow/internal/event"
)

// DispatchErrorCode categorizes dispatch failures.
type DispatchErrorCode string

const (
	// ErrCodeInvalidEvent indicates the event vector failed validation.
	ErrCodeInvalidEvent DispatchErrorCode = "INVALID_EVENT"

	// ErrCodeUnknownEvent indicates no handler is registered for the id.
	ErrCodeUnknownEvent DispatchErrorCode = "UNKNOWN_EVENT"

	// ErrCodeUnknownEffect indicates a handler requested an effect with
	// no registered executor.
	ErrCodeUnknownEffect DispatchErrorCode = "UNKNOWN_EFFECT"

	// ErrCodeUnknownCoeffect indicates a handler declared a coeffect
	// with no registered injector.
	ErrCodeUnknownCoeffect DispatchErrorCode = "UNKNOWN_COEFFECT"

	// ErrCodeEngineClosed indicates a dispatch after Close.
	ErrCodeEngineClosed DispatchErrorCode = "ENGINE_CLOSED"
)

// DispatchError reports a failure to accept or route an event, before
// any handler ran.
type DispatchError struct {
	Code    DispatchErrorCode
	EventID string
	Message string
}

func (e *DispatchError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Message, e.EventID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownEvent reports whether err is a dispatch failure for an
// unregistered event id. Uses errors.As to handle wrapping.
func IsUnknownEvent(err error) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.Code == ErrCodeUnknownEvent
}

// Phase names the half of the interceptor chain an error came from.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// PhaseError wraps a failure raised inside the interceptor chain,
// including recovered panics. It identifies which interceptor failed
// and in which direction the chain was running.
type PhaseError struct {
	Phase         Phase
	InterceptorID string
	Event         event.Vector
	Err           error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("event %s: %s %s: %v", e.Event, e.Phase, e.InterceptorID, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// AsPhaseError extracts a PhaseError from err, if any.
func AsPhaseError(err error) (*PhaseError, bool) {
	var pe *PhaseError
	ok := errors.As(err, &pe)
	return pe, ok
}
