package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies provider failures into the small set of categories the
// Agent Layer and Workflow Engine need for retry/UX decisions.
type ErrorKind string

const (
	// ErrorKindProviderUnavailable indicates a transient provider failure
	// (5xx, network issue) where a retry may succeed.
	ErrorKindProviderUnavailable ErrorKind = "provider_unavailable"
	// ErrorKindProviderAuth indicates authentication/authorization failure.
	ErrorKindProviderAuth ErrorKind = "provider_auth"
	// ErrorKindBadRequest indicates the request is invalid; retrying
	// without changing it will not succeed.
	ErrorKindBadRequest ErrorKind = "bad_request"
	// ErrorKindRateLimited indicates the provider is throttling requests.
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindTimeout indicates the call exceeded its deadline.
	ErrorKindTimeout ErrorKind = "timeout"
)

// ProviderError reports a failure returned by a model provider adapter. It
// crosses package boundaries intact so the Workflow Engine's retry
// classification (§4.7.4) can inspect Kind() rather than parsing messages.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration // populated when Kind == ErrorKindRateLimited
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("model: %s %s: %s", e.Provider, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether the error kind is one the Workflow Engine's
// retry policy should act on.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ErrorKindProviderUnavailable, ErrorKindRateLimited, ErrorKindTimeout:
		return true
	default:
		return false
	}
}

// AsProviderError returns the first *ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
