package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies engine errors so callers can branch on them
// without string matching.
type ErrorKind string

const (
	ErrMalformedSpec            ErrorKind = "MALFORMED_SPEC"
	ErrUnknownPortReference     ErrorKind = "UNKNOWN_PORT_REFERENCE"
	ErrDuplicateAlias           ErrorKind = "DUPLICATE_ALIAS"
	ErrUnboundParameter         ErrorKind = "UNBOUND_PARAMETER"
	ErrCyclicParameterReference ErrorKind = "CYCLIC_PARAMETER_REFERENCE"
	ErrCyclicGraph              ErrorKind = "CYCLIC_GRAPH"
	ErrUnreachableSink          ErrorKind = "UNREACHABLE_SINK"
	ErrTransientTaskFailure     ErrorKind = "TRANSIENT_TASK_FAILURE"
	ErrPermanentTaskFailure     ErrorKind = "PERMANENT_TASK_FAILURE"
	ErrSecretNotFound           ErrorKind = "SECRET_NOT_FOUND"
	ErrRetryBudgetExhausted     ErrorKind = "RETRY_BUDGET_EXHAUSTED"
	ErrRunCancelled             ErrorKind = "RUN_CANCELLED"
)

// Error is the engine's structured error. Task is the qualified alias of
// the task the error originated from, empty for submission-time errors.
type Error struct {
	Kind ErrorKind
	Task string
	Msg  string
}

func (e *Error) Error() string {
	if e.Task != "" {
		return fmt.Sprintf("%s: task %q: %s", e.Kind, e.Task, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// NewError builds a submission-scoped Error.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NewTaskError builds an Error attributed to a task.
func NewTaskError(kind ErrorKind, task, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Task: task, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed.
// Errors that are not engine Errors report ErrPermanentTaskFailure
// only via the retry policy, not here; KindOf returns "" for them.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
