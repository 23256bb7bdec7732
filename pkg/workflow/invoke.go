package workflow

import (
	"context"
	"time"
)

// invokeWithRetry invokes step.Executor, retrying on retryable failures per
// §4.7.4's backoff formula. Retries are waited out inline (bounded by the
// engine-wide rate limiter and the per-attempt backoff delay) rather than
// releasing the worker goroutine; this is a deliberate in-memory-engine
// simplification documented in DESIGN.md. It also updates the per-step
// circuit breaker on success/failure.
func (e *Engine) invokeWithRetry(ctx context.Context, state *RunState, step *StepDefinition, input any) (StepResult, error) {
	attempt := 1
	for {
		result, err := e.invokeOnce(ctx, step, input)
		if err == nil {
			e.recordBreakerOutcome(ctx, state.WorkflowID, step.ID, true)
			if err := e.retryStore.DeleteRetryContext(ctx, state.InstanceID, step.ID); err != nil {
				e.logger.Warn(ctx, "workflow: failed to clear retry context", "instanceId", state.InstanceID, "stepId", step.ID, "error", err)
			}
			return result, nil
		}

		re := classify(err)
		e.recordBreakerOutcome(ctx, state.WorkflowID, step.ID, false)

		rc := RetryContext{
			InstanceID:    state.InstanceID,
			StepID:        step.ID,
			AttemptNumber: attempt,
			LastErrorKind: re.Kind,
			LastMessage:   re.Error(),
			UpdatedAt:     time.Now(),
		}
		if saveErr := e.retryStore.SaveRetryContext(ctx, rc); saveErr != nil {
			e.logger.Warn(ctx, "workflow: failed to persist retry context", "instanceId", state.InstanceID, "stepId", step.ID, "error", saveErr)
		}

		e.notifyRetryFailure(rc, err)

		if !re.Retryable() || attempt >= step.RetryPolicy.MaxAttempts {
			e.notifyRetryExhausted(rc, err)
			return StepResult{}, re
		}

		e.notifyBeforeRetry(rc)
		if waitErr := e.waitRetryDelay(ctx, step.RetryPolicy.delayFor(attempt)); waitErr != nil {
			return StepResult{}, waitErr
		}
		attempt++
	}
}

func (e *Engine) invokeOnce(ctx context.Context, step *StepDefinition, input any) (StepResult, error) {
	runCtx := ctx
	if step.Deadline.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, step.Deadline.Timeout)
		defer cancel()
	}
	result, err := step.Executor(runCtx, input)
	if err != nil && runCtx.Err() != nil && ctx.Err() == nil {
		return StepResult{}, NewRunError(ErrorKindTimeout, step.ID, err)
	}
	return result, err
}

func (e *Engine) waitRetryDelay(ctx context.Context, delay time.Duration) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) loadBreaker(ctx context.Context, workflowID, stepID string) BreakerSnapshot {
	snap, ok, err := e.retryStore.LoadBreakerSnapshot(ctx, workflowID, stepID)
	if err != nil {
		e.logger.Warn(ctx, "workflow: failed to load breaker snapshot", "workflowId", workflowID, "stepId", stepID, "error", err)
	}
	if !ok || snap == nil {
		return BreakerSnapshot{WorkflowID: workflowID, StepID: stepID, State: BreakerClosed}
	}
	return *snap
}

func (e *Engine) saveBreaker(ctx context.Context, snap BreakerSnapshot) {
	if err := e.retryStore.SaveBreakerSnapshot(ctx, snap); err != nil {
		e.logger.Warn(ctx, "workflow: failed to persist breaker snapshot", "workflowId", snap.WorkflowID, "stepId", snap.StepID, "error", err)
	}
}

func (e *Engine) recordBreakerOutcome(ctx context.Context, workflowID, stepID string, success bool) {
	cfg := e.breakerConfigFor(workflowID, stepID)
	snap := e.loadBreaker(ctx, workflowID, stepID)
	if success {
		snap = snap.RecordSuccess()
	} else {
		snap = snap.RecordFailure(cfg, time.Now())
	}
	e.saveBreaker(ctx, snap)
}

func (e *Engine) notifyBeforeRetry(rc RetryContext) {
	for _, l := range e.listeners {
		safeListenerCall(func() { l.BeforeRetry(rc) })
	}
}

func (e *Engine) notifyRetryFailure(rc RetryContext, err error) {
	for _, l := range e.listeners {
		safeListenerCall(func() { l.OnRetryFailure(rc, err) })
	}
}

func (e *Engine) notifyRetryExhausted(rc RetryContext, err error) {
	for _, l := range e.listeners {
		safeListenerCall(func() { l.OnRetryExhausted(rc, err) })
	}
}

// safeListenerCall isolates a listener callback so a panic in one listener
// never propagates into engine logic, per §4.7.4's "failures in listeners
// are logged but must not block retry logic".
func safeListenerCall(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
