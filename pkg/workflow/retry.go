package workflow

import (
	"math"
	"time"
)

// RetryPolicy governs re-execution of a failed step, following the teacher
// engine's RetryPolicy naming (MaxAttempts / InitialInterval /
// BackoffCoefficient) generalized with the cap SPEC_FULL.md's delay formula
// requires.
type RetryPolicy struct {
	// MaxAttempts caps the number of attempts (including the first),
	// after which retries are exhausted. Zero means no retries.
	MaxAttempts int
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// BackoffCoefficient multiplies the delay after each attempt. Values
	// below 1 are treated as 1 (constant backoff).
	BackoffCoefficient float64
	// MaxInterval caps the computed delay. Zero means uncapped.
	MaxInterval time.Duration
}

// DeadlineConfig bounds one executor invocation.
type DeadlineConfig struct {
	Timeout time.Duration
}

// delayFor computes delay × multiplier^(attemptNumber-1), capped at
// MaxInterval, per §4.7.4.
func (p RetryPolicy) delayFor(attemptNumber int) time.Duration {
	coeff := p.BackoffCoefficient
	if coeff < 1 {
		coeff = 1
	}
	delay := float64(p.InitialInterval) * math.Pow(coeff, float64(attemptNumber-1))
	d := time.Duration(delay)
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// RetryContext is the durable state tracked per (instanceID, stepID) across
// failed attempts.
type RetryContext struct {
	InstanceID    string
	StepID        string
	AttemptNumber int
	LastErrorKind ErrorKind
	LastMessage   string
	UpdatedAt     time.Time
}

// RetryListener is notified at each stage of the retry lifecycle. Listener
// failures are logged by the engine and must never block retry logic.
type RetryListener interface {
	BeforeRetry(ctx RetryContext)
	OnRetryFailure(ctx RetryContext, err error)
	OnRetryExhausted(ctx RetryContext, err error)
}
