package workflow

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a run failure for callers and for retry
// classification (§4.7.4's non-retryable set: BadRequest, SchemaBindError,
// cancellation).
type ErrorKind string

const (
	ErrorKindInvalidBranch          ErrorKind = "InvalidBranch"
	ErrorKindInvocationLimitExceeded ErrorKind = "InvocationLimitExceeded"
	ErrorKindInvalidResume          ErrorKind = "InvalidResume"
	ErrorKindCircuitOpen            ErrorKind = "CircuitOpen"
	ErrorKindTimeout                ErrorKind = "Timeout"
	ErrorKindBadRequest             ErrorKind = "BadRequest"
	ErrorKindSchemaBindError        ErrorKind = "SchemaBindError"
	ErrorKindCancelled              ErrorKind = "Cancelled"
	ErrorKindUnknownWorkflow        ErrorKind = "UnknownWorkflow"
	ErrorKindExecutorError          ErrorKind = "ExecutorError"
)

// RunError is the typed error surfaced when a run transitions to FAILED, or
// when an engine operation is rejected outright (e.g. InvalidResume,
// CircuitOpen). Kind lets callers and the retry/breaker logic branch
// without parsing messages.
type RunError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("workflow: %s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("workflow: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("workflow: %s", e.Kind)
}

func (e *RunError) Unwrap() error { return e.Cause }

// Retryable reports whether e's Kind is one the retry policy should act on.
// BadRequest, SchemaBindError, and Cancelled are never retried per §4.7.4.
func (e *RunError) Retryable() bool {
	switch e.Kind {
	case ErrorKindBadRequest, ErrorKindSchemaBindError, ErrorKindCancelled:
		return false
	default:
		return true
	}
}

// NewRunError constructs a RunError of the given kind.
func NewRunError(kind ErrorKind, message string, cause error) *RunError {
	return &RunError{Kind: kind, Message: message, Cause: cause}
}

// classify maps an arbitrary executor error into a RunError, preserving an
// existing *RunError's kind or defaulting to ExecutorError.
func classify(err error) *RunError {
	if err == nil {
		return nil
	}
	var re *RunError
	if errors.As(err, &re) {
		return re
	}
	if errors.Is(err, context.Canceled) {
		return &RunError{Kind: ErrorKindCancelled, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RunError{Kind: ErrorKindTimeout, Cause: err}
	}
	return &RunError{Kind: ErrorKindExecutorError, Cause: err}
}
