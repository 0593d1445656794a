// Package faults defines the error taxonomy shared across the orchestrator
// and the classifier that decides whether a failure is worth retrying.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced at component boundaries. Callers match them with
// errors.Is and translate them to transport-level responses.
var (
	// ErrNotFound indicates an unknown job, pipeline or resource.
	ErrNotFound = errors.New("not found")
	// ErrQueueFull is the backpressure signal raised when a pipeline queue
	// is at capacity. Callers may retry with their own backoff.
	ErrQueueFull = errors.New("queue full")
)

// ValidationError reports malformed caller input. It is never retried.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (fields: %s)", e.Message, strings.Join(e.Fields, ", "))
}

// NewValidationError creates a ValidationError naming the offending fields.
func NewValidationError(msg string, fields ...string) *ValidationError {
	return &ValidationError{Message: msg, Fields: fields}
}

// Error is a structured execution failure. It carries the stable fields the
// rest of the system reads (code, HTTP status, stack excerpt) and the
// classification computed when it was wrapped.
type Error struct {
	Message  string
	Code     string
	Status   int
	Stack    string
	Decision Decision
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// FaultCode returns the structured code, satisfying the extraction
// interface used by Classify.
func (e *Error) FaultCode() string { return e.Code }

// HTTPStatus returns the HTTP-style status, if any.
func (e *Error) HTTPStatus() int { return e.Status }

// Wrap builds a structured Error around cause. The code and status are
// inherited from the cause chain so that wrapping never hides the original
// classification signal.
func Wrap(message string, cause error) *Error {
	e := &Error{Message: message, cause: cause}
	if cause != nil {
		e.Code = CodeOf(cause)
		e.Status = StatusOf(cause)
		var inner *Error
		if errors.As(cause, &inner) && inner.Stack != "" {
			e.Stack = inner.Stack
		}
	}
	e.Decision = Classify(e)
	return e
}

// Permanent wraps cause as a non-retryable structured error. Executors use
// it to short-circuit the retry machinery for failures that can never
// succeed on a second attempt.
func Permanent(message string, cause error) *Error {
	e := Wrap(message, cause)
	e.Decision = Decision{Category: NonRetryable, Reason: "marked permanent"}
	return e
}

// Detail is the persisted/serialised form of a failure, attached to job
// records and surfaced through the HTTP API.
type Detail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

// DetailOf flattens err into its persisted form. Returns nil for nil.
func DetailOf(err error) *Detail {
	if err == nil {
		return nil
	}
	d := &Detail{Message: err.Error(), Code: CodeOf(err)}
	var se *Error
	if errors.As(err, &se) {
		d.Message = se.Message
		d.Stack = se.Stack
		if c := se.Unwrap(); c != nil {
			d.Cause = c.Error()
		}
	}
	if d.Message == "" {
		d.Message = "Unknown error"
	}
	return d
}

// Info flattens err into loggable key/value fields: message, code, status,
// category and cause where present.
func Info(err error) map[string]any {
	if err == nil {
		return nil
	}
	info := map[string]any{"message": err.Error()}
	if code := CodeOf(err); code != "" {
		info["code"] = code
	}
	if status := StatusOf(err); status != 0 {
		info["status"] = status
	}
	var se *Error
	if errors.As(err, &se) {
		if se.Stack != "" {
			info["stack"] = se.Stack
		}
		if c := se.Unwrap(); c != nil {
			info["cause"] = c.Error()
		}
	}
	d := Classify(err)
	info["retryable"] = d.Category == Retryable
	return info
}
