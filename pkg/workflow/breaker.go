package workflow

import "time"

// BreakerState is one of CLOSED / OPEN / HALF_OPEN per §4.7.5.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig parameterizes one step's circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// CLOSED to OPEN.
	FailureThreshold int
	// CooldownMs is how long the breaker stays OPEN before allowing a
	// single HALF_OPEN probe.
	CooldownMs int64
}

// BreakerSnapshot is the durable state of one step's circuit breaker,
// scoped and persisted per (workflowId, stepId) across runs, per the
// Open Question resolution recorded in DESIGN.md.
type BreakerSnapshot struct {
	WorkflowID          string
	StepID              string
	State               BreakerState
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// AllowRequest reports whether an invocation of the step should proceed,
// given cfg and now. It returns the snapshot to persist (possibly
// transitioned from OPEN to HALF_OPEN) alongside the decision.
func (s BreakerSnapshot) AllowRequest(cfg BreakerConfig, now time.Time) (BreakerSnapshot, bool) {
	if cfg.CooldownMs <= 0 {
		// A zero (or negative) cooldown is equivalent to the breaker being
		// disabled: never short-circuit, regardless of state.
		return s, true
	}
	switch s.State {
	case BreakerOpen:
		if now.Sub(s.OpenedAt) >= time.Duration(cfg.CooldownMs)*time.Millisecond {
			s.State = BreakerHalfOpen
			return s, true
		}
		return s, false
	case BreakerHalfOpen:
		// A probe is already in flight; its outcome decides the next state.
		return s, false
	default:
		return s, true
	}
}

// RecordSuccess transitions the breaker toward CLOSED after a successful
// invocation (always closes, whether probing from HALF_OPEN or already
// CLOSED).
func (s BreakerSnapshot) RecordSuccess() BreakerSnapshot {
	s.State = BreakerClosed
	s.ConsecutiveFailures = 0
	return s
}

// RecordFailure increments the consecutive-failure count and trips the
// breaker to OPEN when cfg.FailureThreshold is reached, or immediately
// re-opens a HALF_OPEN probe's failure.
func (s BreakerSnapshot) RecordFailure(cfg BreakerConfig, now time.Time) BreakerSnapshot {
	if s.State == BreakerHalfOpen {
		s.State = BreakerOpen
		s.OpenedAt = now
		return s
	}
	s.ConsecutiveFailures++
	if cfg.FailureThreshold > 0 && s.ConsecutiveFailures >= cfg.FailureThreshold {
		s.State = BreakerOpen
		s.OpenedAt = now
	}
	return s
}
