// Package errs defines the error taxonomy shared by every component of the
// delegation engine. A Kind is the propagation-policy key: callers branch on
// Kind (via errors.As) to decide whether to retry, fall back, escalate, or
// surface the failure to the user, rather than string-matching messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies an error's place in the taxonomy. The zero value is unset
// and should not be produced by New/Wrap.
type Kind string

const (
	KindMalformedCarrier           Kind = "malformed_carrier"
	KindUnknownTool                Kind = "unknown_tool"
	KindToolArgError               Kind = "tool_arg_error"
	KindTransportError              Kind = "transport_error"
	KindTimeout                     Kind = "timeout"
	KindEmptyResponse               Kind = "empty_response"
	KindCorruptedOutput             Kind = "corrupted_output"
	KindValidationFailure           Kind = "validation_failure"
	KindEscalationUnavailable       Kind = "escalation_unavailable"
	KindPlanCycle                   Kind = "plan_cycle"
	KindUnknownAgent                Kind = "unknown_agent"
	KindInvariantViolation          Kind = "invariant_violation"
	KindTransportLifetimeViolation  Kind = "transport_lifetime_violation"
	KindToolServerError             Kind = "tool_server_error"
)

// Error is a structured, wrappable error carrying a taxonomy Kind, the
// operation that produced it, and an optional underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New constructs an Error with no underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(message)}
}

// Wrap constructs an Error around an existing cause, preserving the chain so
// errors.Is/errors.As see through to it.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Errorf is Wrap with fmt.Errorf-style message formatting; the formatted
// error becomes the cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: K}) match any *Error with the same Kind
// regardless of Op/Err, which is the common call pattern at propagation
// boundaries ("was this a Timeout?").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the taxonomy Kind from err, walking the Unwrap chain.
// Returns "" if no *Error is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinel kind markers for errors.Is comparisons, e.g.
// errors.Is(err, Timeout).
var (
	MalformedCarrier           = &Error{Kind: KindMalformedCarrier}
	UnknownTool                = &Error{Kind: KindUnknownTool}
	ToolArgError               = &Error{Kind: KindToolArgError}
	TransportError             = &Error{Kind: KindTransportError}
	Timeout                    = &Error{Kind: KindTimeout}
	EmptyResponse              = &Error{Kind: KindEmptyResponse}
	CorruptedOutput            = &Error{Kind: KindCorruptedOutput}
	ValidationFailure          = &Error{Kind: KindValidationFailure}
	EscalationUnavailable      = &Error{Kind: KindEscalationUnavailable}
	PlanCycle                  = &Error{Kind: KindPlanCycle}
	UnknownAgent               = &Error{Kind: KindUnknownAgent}
	InvariantViolation         = &Error{Kind: KindInvariantViolation}
	TransportLifetimeViolation = &Error{Kind: KindTransportLifetimeViolation}
	ToolServerError            = &Error{Kind: KindToolServerError}
)
