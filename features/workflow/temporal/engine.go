package temporal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/telemetry"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

// defaultActivityTimeout bounds a step activity with no explicit Deadline.
const defaultActivityTimeout = time.Minute

// Options configures the Temporal-backed Engine.
type Options struct {
	// Client is a pre-configured Temporal client. Required.
	Client client.Client
	// TaskQueue is the default task queue workers poll and workflows start
	// on. Required.
	TaskQueue string
	// Logger records engine-level diagnostics; defaults to a no-op logger.
	Logger telemetry.Logger
	// DisableWorkerAutoStart disables automatically starting the worker on
	// the first RegisterGraph call; call Worker().Start() explicitly
	// instead.
	DisableWorkerAutoStart bool
}

// Engine is a durable, Temporal-backed alternative to pkg/workflow.Engine.
// It exposes the same StartRun/ResumeRun/CompleteAsync/Cancel surface, but
// every run is a Temporal workflow execution: suspend points become signal
// waits, and crash recovery is Temporal's replay rather than a polled
// ContextRepository read.
type Engine struct {
	client    client.Client
	taskQueue string
	logger    telemetry.Logger

	mu            sync.Mutex
	worker        worker.Worker
	workerStarted bool
	autoStart     bool
	graphs        map[string]*workflow.Graph
}

// New constructs an Engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, errors.New("temporal: client is required")
	}
	if opts.TaskQueue == "" {
		return nil, errors.New("temporal: task queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Engine{
		client:    opts.Client,
		taskQueue: opts.TaskQueue,
		logger:    logger,
		autoStart: !opts.DisableWorkerAutoStart,
		graphs:    make(map[string]*workflow.Graph),
	}, nil
}

// RegisterGraph makes g available for StartRun, registering its workflow
// function and one activity per step with the engine's worker.
func (e *Engine) RegisterGraph(g *workflow.Graph) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.graphs[g.WorkflowID] = g
	w := e.workerLocked()
	w.RegisterWorkflowWithOptions(e.makeWorkflowFunc(g), tempworkflowRegisterOptions(g.WorkflowID))
	for _, step := range g.Steps {
		w.RegisterActivityWithOptions(e.makeStepActivity(step), tempactivityRegisterOptions(activityName(g.WorkflowID, step.ID)))
	}
	if e.autoStart && !e.workerStarted {
		e.startWorkerLocked()
	}
}

// workerLocked returns the engine's worker, creating it on first use.
// Callers must hold e.mu.
func (e *Engine) workerLocked() worker.Worker {
	if e.worker == nil {
		e.worker = worker.New(e.client, e.taskQueue, worker.Options{})
	}
	return e.worker
}

func (e *Engine) startWorkerLocked() {
	e.workerStarted = true
	go func() {
		if err := e.worker.Run(worker.InterruptCh()); err != nil {
			e.logger.Error(context.Background(), "temporal workflow engine: worker exited", "error", err)
		}
	}()
}

// Worker exposes manual start control, for callers that disabled auto-start.
func (e *Engine) Worker() worker.Worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workerLocked()
}

// StartWorker starts the worker if it has not already started.
func (e *Engine) StartWorker() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.workerStarted {
		e.startWorkerLocked()
	}
}

// Close stops the worker. It does not close the Temporal client: the caller
// owns the client's lifecycle.
func (e *Engine) Close() {
	e.mu.Lock()
	w := e.worker
	e.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// StartRun begins a new Temporal workflow execution for instanceID, the
// durable analogue of pkg/workflow.Engine.StartRun.
func (e *Engine) StartRun(ctx context.Context, workflowID, instanceID string, trigger any) (workflow.Outcome, error) {
	e.mu.Lock()
	g, ok := e.graphs[workflowID]
	e.mu.Unlock()
	if !ok {
		return workflow.Outcome{}, workflow.NewRunError(workflow.ErrorKindUnknownWorkflow, workflowID, nil)
	}

	opts := client.StartWorkflowOptions{ID: instanceID, TaskQueue: e.taskQueue}
	if _, err := e.client.ExecuteWorkflow(ctx, opts, workflowTypeName(workflowID), trigger); err != nil {
		return workflow.Outcome{}, err
	}
	return e.awaitOutcome(ctx, g.WorkflowID, instanceID)
}

// ResumeRun delivers input to the run suspended on messageID via a Temporal
// signal, then blocks for the run's next settled Outcome exactly like
// pkg/workflow.Engine.ResumeRun.
func (e *Engine) ResumeRun(ctx context.Context, instanceID, messageID string, input any) (workflow.Outcome, error) {
	return e.signalAndAwait(ctx, instanceID, resumeSignalName(messageID), input)
}

// CompleteAsync delivers a background task's output to the run suspended on
// messageID, mirroring pkg/workflow.Engine.CompleteAsync.
func (e *Engine) CompleteAsync(ctx context.Context, instanceID, messageID string, taskOutput any) (workflow.Outcome, error) {
	return e.signalAndAwait(ctx, instanceID, asyncSignalName(messageID), taskOutput)
}

// signalAndAwait delivers a signal and awaits the resulting Outcome. The
// workflow type isn't known from instanceID alone without a durable
// instance->workflow index, so the returned Outcome leaves WorkflowID blank;
// InstanceID remains the caller's identity key either way.
func (e *Engine) signalAndAwait(ctx context.Context, instanceID, signal string, payload any) (workflow.Outcome, error) {
	if err := e.client.SignalWorkflow(ctx, instanceID, "", signal, payload); err != nil {
		return workflow.Outcome{}, fmt.Errorf("temporal: signal workflow: %w", err)
	}
	return e.awaitOutcome(ctx, "", instanceID)
}

// Cancel requests cancellation of instanceID's run via Temporal's native
// workflow cancellation, which the workflow function observes at its next
// await point (an activity call or signal wait).
func (e *Engine) Cancel(ctx context.Context, instanceID string) error {
	return e.client.CancelWorkflow(ctx, instanceID, "")
}

// pollInterval paces awaitOutcome's retry loop against the narrow window
// where a query arrives before the workflow's first task has registered its
// handler.
const pollInterval = 20 * time.Millisecond

// awaitOutcome polls instanceID's query handler for its current settled
// Outcome rather than blocking on the workflow's terminal result: a run can
// sit SUSPENDED indefinitely, and Temporal's WorkflowRun.Get only resolves
// at completion, so the query is the only way to observe an intermediate
// state the way pkg/workflow.Engine's synchronous StartRun/ResumeRun do.
// Temporal answers queries against both running and closed executions, so
// this same loop naturally picks up terminal outcomes too.
func (e *Engine) awaitOutcome(ctx context.Context, workflowID, instanceID string) (workflow.Outcome, error) {
	for {
		value, err := e.client.QueryWorkflow(ctx, instanceID, "", queryOutcomeName)
		if err == nil {
			var result stepLoopResult
			if decodeErr := value.Get(&result); decodeErr != nil {
				return workflow.Outcome{InstanceID: instanceID, WorkflowID: workflowID, Err: decodeErr}, decodeErr
			}
			if result.Status != workflow.StatusRunning {
				return result.toOutcome(instanceID, workflowID), nil
			}
		} else if !isQueryNotReadyErr(err) {
			return workflow.Outcome{InstanceID: instanceID, WorkflowID: workflowID, Err: err}, err
		}

		select {
		case <-ctx.Done():
			return workflow.Outcome{InstanceID: instanceID, WorkflowID: workflowID, Err: ctx.Err()}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// isQueryNotReadyErr reports whether err is the transient failure Temporal
// returns when a query arrives before the workflow's first task has
// registered its query handler yet. Any other query error is terminal.
func isQueryNotReadyErr(err error) bool {
	return strings.Contains(err.Error(), "query handler not registered") ||
		strings.Contains(err.Error(), "workflow task not completed")
}
