package temporal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	tempactivity "go.temporal.io/sdk/activity"
	temporalsdk "go.temporal.io/sdk/temporal"
	tempworkflow "go.temporal.io/sdk/workflow"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

// newMessageID generates a replay-safe message ID for an Async suspension:
// SideEffect records the value the first time it runs and replays it
// verbatim on subsequent workflow history replays, so uuid.New() here never
// diverges between the original execution and a later replay.
func newMessageID(ctx tempworkflow.Context) string {
	var id string
	_ = tempworkflow.SideEffect(ctx, func(tempworkflow.Context) any {
		return uuid.NewString()
	}).Get(&id)
	return id
}

func workflowTypeName(workflowID string) string { return "driftkit.graph." + workflowID }

func activityName(workflowID, stepID string) string { return "driftkit.step." + workflowID + "." + stepID }

func resumeSignalName(messageID string) string { return "driftkit.resume." + messageID }

func asyncSignalName(messageID string) string { return "driftkit.async." + messageID }

func tempworkflowRegisterOptions(workflowID string) tempworkflow.RegisterOptions {
	return tempworkflow.RegisterOptions{Name: workflowTypeName(workflowID)}
}

func tempactivityRegisterOptions(name string) tempactivity.RegisterOptions {
	return tempactivity.RegisterOptions{Name: name}
}

// queryOutcomeName is the Temporal query handler every graph workflow
// registers. Callers never block on the workflow's terminal Get: a run can
// be SUSPENDED indefinitely, so engine.go instead polls this query to learn
// the run's current settled Outcome, matching pkg/workflow.Engine's
// "returns at every suspend point" contract on top of a workflow type that
// otherwise would only resolve at completion.
const queryOutcomeName = "driftkit.outcome"

// stepResultDTO is the JSON-serializable projection of workflow.StepResult
// an activity returns: Temporal's data converter marshals activity results,
// so the result crossing the activity boundary must be a plain value, not a
// closure-carrying struct.
type stepResultDTO struct {
	Kind            workflow.VariantKind
	Data            any
	NextStepID      string
	MessageID       string
	NextSchemaRef   string
	TaskName        string
	TaskArgs        any
	PercentComplete int
	Result          any
	ErrorMessage    string
}

func fromStepResult(r workflow.StepResult) stepResultDTO {
	dto := stepResultDTO{
		Kind:            r.Kind,
		Data:            r.Data,
		NextStepID:      r.NextStepID,
		MessageID:       r.MessageID,
		NextSchemaRef:   r.NextSchemaRef,
		TaskName:        r.TaskName,
		TaskArgs:        r.TaskArgs,
		PercentComplete: r.PercentComplete,
		Result:          r.Result,
	}
	if r.Err != nil {
		dto.ErrorMessage = r.Err.Error()
	}
	return dto
}

// stepLoopResult is the workflow function's terminal return value.
type stepLoopResult struct {
	Status          workflow.Status
	Result          any
	FailureMessage  string
	MessageID       string
	NextSchemaRef   string
	PercentComplete int
}

func (r stepLoopResult) toOutcome(instanceID, workflowID string) workflow.Outcome {
	out := workflow.Outcome{
		InstanceID:      instanceID,
		WorkflowID:      workflowID,
		Status:          r.Status,
		MessageID:       r.MessageID,
		NextSchemaRef:   r.NextSchemaRef,
		PercentComplete: r.PercentComplete,
		Result:          r.Result,
	}
	if r.FailureMessage != "" {
		out.Err = workflow.NewRunError(workflow.ErrorKindExecutorError, r.FailureMessage, nil)
	}
	return out
}

func convertRetryPolicy(p workflow.RetryPolicy) *temporalsdk.RetryPolicy {
	if p.MaxAttempts == 0 && p.InitialInterval == 0 {
		return nil
	}
	rp := &temporalsdk.RetryPolicy{}
	if p.MaxAttempts > 0 {
		rp.MaximumAttempts = int32(p.MaxAttempts)
	}
	if p.InitialInterval > 0 {
		rp.InitialInterval = p.InitialInterval
	}
	if p.BackoffCoefficient > 0 {
		rp.BackoffCoefficient = p.BackoffCoefficient
	}
	if p.MaxInterval > 0 {
		rp.MaximumInterval = p.MaxInterval
	}
	return rp
}

func activityOptionsFor(step *workflow.StepDefinition) tempworkflow.ActivityOptions {
	timeout := step.Deadline.Timeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}
	return tempworkflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         convertRetryPolicy(step.RetryPolicy),
	}
}

// makeWorkflowFunc builds the Temporal workflow function hosting g's step
// loop. Every step invocation runs as an activity (executors are arbitrary
// in-process closures, not serializable Temporal payloads); suspend points
// become signal waits so Temporal's history, not a ContextRepository poll,
// reconstructs progress on worker restart.
func (e *Engine) makeWorkflowFunc(g *workflow.Graph) func(tempworkflow.Context, any) (*stepLoopResult, error) {
	return func(ctx tempworkflow.Context, trigger any) (*stepLoopResult, error) {
		currentStepID := g.InitialID
		input := trigger
		counts := make(map[string]int)
		lastOutputs := make(map[string]any)

		current := stepLoopResult{Status: workflow.StatusRunning}
		if err := tempworkflow.SetQueryHandler(ctx, queryOutcomeName, func() (stepLoopResult, error) {
			return current, nil
		}); err != nil {
			return nil, fmt.Errorf("temporal workflow: register query handler: %w", err)
		}

		for {
			step, ok := g.Steps[currentStepID]
			if !ok {
				return nil, fmt.Errorf("temporal workflow: unknown step %q", currentStepID)
			}

			counts[step.ID]++
			if step.InvocationsLimit > 0 && counts[step.ID] > step.InvocationsLimit {
				switch step.OnInvocationsLimit {
				case workflow.OnLimitLoopReset:
					counts[step.ID] = 1
				case workflow.OnLimitStop:
					current = stepLoopResult{Status: workflow.StatusCompleted, Result: lastOutputs[step.ID]}
					return &current, nil
				default: // OnLimitFail
					current = stepLoopResult{Status: workflow.StatusFailed, FailureMessage: fmt.Sprintf("step %q exceeded invocation limit", step.ID)}
					return &current, nil
				}
			}

			actx := tempworkflow.WithActivityOptions(ctx, activityOptionsFor(step))
			var dto stepResultDTO
			if err := tempworkflow.ExecuteActivity(actx, activityName(g.WorkflowID, step.ID), input).Get(actx, &dto); err != nil {
				current = stepLoopResult{Status: workflow.StatusFailed, FailureMessage: err.Error()}
				return &current, nil
			}

			switch dto.Kind {
			case workflow.VariantContinue:
				input = dto.Data
				lastOutputs[step.ID] = dto.Data
				if len(step.NextStepIDs) == 0 {
					current = stepLoopResult{Status: workflow.StatusFailed, FailureMessage: fmt.Sprintf("step %q has no next step for Continue", step.ID)}
					return &current, nil
				}
				currentStepID = step.NextStepIDs[0]

			case workflow.VariantBranch:
				input = dto.Data
				lastOutputs[step.ID] = dto.Data
				currentStepID = dto.NextStepID

			case workflow.VariantSuspend:
				current = stepLoopResult{
					Status:          workflow.StatusSuspended,
					MessageID:       dto.MessageID,
					NextSchemaRef:   dto.NextSchemaRef,
					PercentComplete: dto.PercentComplete,
				}
				var resumed any
				ch := tempworkflow.GetSignalChannel(ctx, resumeSignalName(dto.MessageID))
				ch.Receive(ctx, &resumed)
				input = resumed
				current = stepLoopResult{Status: workflow.StatusRunning}

			case workflow.VariantAsync:
				msgID := newMessageID(ctx)
				current = stepLoopResult{
					Status:          workflow.StatusSuspended,
					MessageID:       msgID,
					PercentComplete: dto.PercentComplete,
				}
				var taskOutput any
				ch := tempworkflow.GetSignalChannel(ctx, asyncSignalName(msgID))
				ch.Receive(ctx, &taskOutput)
				input = taskOutput
				current = stepLoopResult{Status: workflow.StatusRunning}
				if len(step.NextStepIDs) > 0 {
					currentStepID = step.NextStepIDs[0]
				}

			case workflow.VariantComplete:
				current = stepLoopResult{Status: workflow.StatusCompleted, Result: dto.Result}
				return &current, nil

			case workflow.VariantFail:
				msg := dto.ErrorMessage
				if msg == "" {
					msg = "step failed"
				}
				current = stepLoopResult{Status: workflow.StatusFailed, FailureMessage: msg}
				return &current, nil

			default:
				current = stepLoopResult{Status: workflow.StatusFailed, FailureMessage: fmt.Sprintf("step %q returned unknown result kind %q", step.ID, dto.Kind)}
				return &current, nil
			}
		}
	}
}

// makeStepActivity wraps step.Executor as a Temporal activity function.
// Executors receive the activity's context. The activity sends no
// heartbeats, so a workflow cancellation is not delivered to a running
// executor; Temporal's activity timeout bounds a stuck executor instead.
func (e *Engine) makeStepActivity(step *workflow.StepDefinition) func(context.Context, any) (stepResultDTO, error) {
	return func(ctx context.Context, input any) (stepResultDTO, error) {
		result, err := step.Executor(ctx, input)
		if err != nil {
			return stepResultDTO{}, err
		}
		return fromStepResult(result), nil
	}
}

const defaultStepTimeout = defaultActivityTimeout
