package workflow

import (
	"context"
	"errors"
	"time"
)

// stepLoop implements §4.7.2-§4.7.6: it repeatedly resolves, invokes, and
// advances steps of g starting at state.CurrentStepID with input, until the
// run suspends or reaches a terminal status. The caller (Engine.run) holds
// the per-instance lock for the duration of this call.
func (e *Engine) stepLoop(ctx context.Context, g *Graph, state *RunState, input any) Outcome {
	for {
		if state.CancelRequested || ctx.Err() != nil || pastDeadline(state) {
			state.Status = StatusCancelled
			state.SuspendedMessageID = ""
			e.persist(ctx, state)
			return e.outcomeFor(state, nil, 0)
		}

		step, ok := g.Steps[state.CurrentStepID]
		if !ok {
			return e.fail(ctx, state, NewRunError(ErrorKindInvalidBranch, "unknown step "+state.CurrentStepID, nil))
		}

		if sig, isAsync := input.(asyncResumeSignal); isAsync {
			state.StepOutputs[step.ID] = sig.output
			next := firstNext(step)
			if next == "" {
				state.Status = StatusCompleted
				state.FinalResult = sig.output
				e.persist(ctx, state)
				return e.outcomeFor(state, nil, 0)
			}
			state.CurrentStepID = next
			input = sig.output
			e.persist(ctx, state)
			continue
		}

		stepInput, bindErr := e.resolveInput(step, input)
		if bindErr != nil {
			return e.fail(ctx, state, bindErr)
		}

		if limited, outcome := e.applyInvocationLimit(ctx, state, step); limited {
			return outcome
		}

		breakerCfg := e.breakerConfigFor(g.WorkflowID, step.ID)
		snap := e.loadBreaker(ctx, g.WorkflowID, step.ID)
		next, allowed := snap.AllowRequest(breakerCfg, time.Now())
		if next != snap {
			e.saveBreaker(ctx, next)
		}
		if !allowed {
			return e.fail(ctx, state, NewRunError(ErrorKindCircuitOpen, step.ID, nil))
		}

		result, err := e.invokeWithRetry(ctx, state, step, stepInput)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				state.Status = StatusCancelled
				e.persist(ctx, state)
				return e.outcomeFor(state, nil, 0)
			}
			return e.fail(ctx, state, err)
		}

		state.StepOutputs[step.ID] = result.Data
		switch result.Kind {
		case VariantContinue:
			nxt := firstNext(step)
			if nxt == "" {
				state.Status = StatusCompleted
				state.FinalResult = result.Data
				e.persist(ctx, state)
				return e.outcomeFor(state, nil, 0)
			}
			state.CurrentStepID = nxt
			e.persist(ctx, state)

		case VariantBranch:
			if !contains(step.NextStepIDs, result.NextStepID) {
				return e.fail(ctx, state, NewRunError(ErrorKindInvalidBranch, result.NextStepID, nil))
			}
			state.CurrentStepID = result.NextStepID
			e.persist(ctx, state)

		case VariantSuspend:
			state.Status = StatusSuspended
			state.CurrentStepID = step.ID
			state.SuspendedMessageID = result.MessageID
			state.SuspendedIsAsync = false
			state.NextSchemaRef = result.NextSchemaRef
			e.messageIndex.Store(result.MessageID, state.InstanceID)
			e.persist(ctx, state)
			return e.outcomeFor(state, nil, 0)

		case VariantAsync:
			msgID := newMessageID()
			state.Status = StatusSuspended
			state.CurrentStepID = step.ID
			state.SuspendedMessageID = msgID
			state.SuspendedIsAsync = true
			e.messageIndex.Store(msgID, state.InstanceID)
			e.persist(ctx, state)
			out := e.outcomeFor(state, nil, result.PercentComplete)
			out.MessageID = msgID
			out.TaskName = result.TaskName
			out.TaskArgs = result.TaskArgs
			return out

		case VariantComplete:
			state.Status = StatusCompleted
			state.FinalResult = result.Result
			e.persist(ctx, state)
			return e.outcomeFor(state, nil, 100)

		case VariantFail:
			return e.fail(ctx, state, classify(result.Err))
		}
	}
}

func pastDeadline(state *RunState) bool {
	return !state.Deadline.IsZero() && time.Now().After(state.Deadline)
}

func firstNext(step *StepDefinition) string {
	if len(step.NextStepIDs) == 0 {
		return ""
	}
	return step.NextStepIDs[0]
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// resolveInput builds the value passed to step's Executor: a schema-bound
// record when the step requires user input, or the previous transition's
// carried value otherwise.
func (e *Engine) resolveInput(step *StepDefinition, input any) (any, error) {
	if !step.UserInputRequired {
		return input, nil
	}
	props, ok := input.(map[string]string)
	if !ok {
		return nil, NewRunError(ErrorKindSchemaBindError, "step "+step.ID+" requires a property bag", nil)
	}
	if e.schemas == nil {
		return nil, NewRunError(ErrorKindSchemaBindError, "no schema registry configured", nil)
	}
	typeRef, err := e.schemas.SchemaByID(step.InputSchemaID)
	if err != nil {
		return nil, NewRunError(ErrorKindSchemaBindError, err.Error(), err)
	}
	instantiated, err := e.schemas.Instantiate(typeRef, props)
	if err != nil {
		return nil, NewRunError(ErrorKindSchemaBindError, err.Error(), err)
	}
	return instantiated, nil
}

// applyInvocationLimit increments the step's invocation count and applies
// STOP / LOOP_RESET / FAIL when the configured limit is exceeded. The
// boolean return reports whether the loop should terminate immediately
// with the accompanying Outcome.
func (e *Engine) applyInvocationLimit(ctx context.Context, state *RunState, step *StepDefinition) (bool, Outcome) {
	state.StepInvocationCounts[step.ID]++
	if step.InvocationsLimit <= 0 || state.StepInvocationCounts[step.ID] <= step.InvocationsLimit {
		return false, Outcome{}
	}
	switch step.OnInvocationsLimit {
	case OnLimitLoopReset:
		state.StepInvocationCounts[step.ID] = 1
		return false, Outcome{}
	case OnLimitStop:
		state.Status = StatusCompleted
		state.FinalResult = state.StepOutputs[step.ID]
		e.persist(ctx, state)
		return true, e.outcomeFor(state, nil, 0)
	default: // OnLimitFail
		out := e.fail(ctx, state, NewRunError(ErrorKindInvocationLimitExceeded, step.ID, nil))
		return true, out
	}
}

func (e *Engine) persist(ctx context.Context, state *RunState) {
	state.UpdatedAt = time.Now()
	if err := e.repo.Save(ctx, state); err != nil {
		e.logger.Error(ctx, "workflow: failed to persist run state", "instanceId", state.InstanceID, "error", err)
	}
}

func (e *Engine) fail(ctx context.Context, state *RunState, err error) Outcome {
	re := classify(err)
	state.Status = StatusFailed
	state.FailureKind = string(re.Kind)
	state.FailureMessage = re.Error()
	e.persist(ctx, state)
	return e.outcomeFor(state, re, 0)
}

func (e *Engine) outcomeFor(state *RunState, err error, pct int) Outcome {
	return Outcome{
		InstanceID:      state.InstanceID,
		WorkflowID:      state.WorkflowID,
		Status:          state.Status,
		MessageID:       state.SuspendedMessageID,
		NextSchemaRef:   state.NextSchemaRef,
		PercentComplete: pct,
		Result:          state.FinalResult,
		Err:             err,
	}
}
