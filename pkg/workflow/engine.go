package workflow

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/schema"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/telemetry"
)

type (
	// Outcome is what one StartRun/ResumeRun/CompleteAsync call returns to
	// its caller: the run's status immediately after the call settles at
	// a suspend point or terminal transition.
	Outcome struct {
		InstanceID      string
		WorkflowID      string
		Status          Status
		MessageID       string
		NextSchemaRef   string
		PercentComplete int
		Result          any
		Err             error

		// TaskName / TaskArgs are populated only when the run just
		// suspended on an Async variant: the caller is responsible for
		// enqueueing the named background task and later calling
		// CompleteAsync with its output.
		TaskName string
		TaskArgs any
	}

	// EngineConfig configures a new Engine.
	EngineConfig struct {
		// Workers / QueueSize size the bounded worker pool (§4.7.1).
		// Workers defaults to runtime.GOMAXPROCS(0); QueueSize defaults
		// to 256.
		Workers   int
		QueueSize int

		Repository ContextRepository
		RetryStore RetryStateStore
		Schemas    *schema.Registry

		Logger  telemetry.Logger
		Metrics telemetry.Metrics

		// DefaultBreaker is used for any (workflowId, stepId) without a
		// more specific entry in Breakers.
		DefaultBreaker BreakerConfig
		Breakers       map[string]BreakerConfig // key: workflowID+"\x00"+stepID

		Listeners []RetryListener

		// RetryBurst / RetryPerSecond bound how many retry
		// re-invocations the engine issues per second across all runs,
		// smoothing thundering-herd retry storms.
		RetryPerSecond float64
		RetryBurst     int
	}

	// Engine is the Workflow Engine: it owns graph registration, run
	// execution, retry/circuit-breaker policy, and suspend/resume.
	Engine struct {
		mu     sync.RWMutex
		graphs map[string]*Graph

		repo       ContextRepository
		retryStore RetryStateStore
		schemas    *schema.Registry

		logger  telemetry.Logger
		metrics telemetry.Metrics

		pool *pool

		defaultBreaker BreakerConfig
		breakers       map[string]BreakerConfig
		listeners      []RetryListener
		limiter        *rate.Limiter

		instanceLocks sync.Map // instanceID -> *sync.Mutex
		messageIndex  sync.Map // messageID -> instanceID
	}
)

// NewEngine constructs an Engine from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	limit := rate.Limit(cfg.RetryPerSecond)
	if cfg.RetryPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RetryBurst
	if burst <= 0 {
		burst = 1
	}
	return &Engine{
		graphs:         make(map[string]*Graph),
		repo:           cfg.Repository,
		retryStore:     cfg.RetryStore,
		schemas:        cfg.Schemas,
		logger:         logger,
		metrics:        metrics,
		pool:           newPool(workers, queueSize),
		defaultBreaker: cfg.DefaultBreaker,
		breakers:       cfg.Breakers,
		listeners:      cfg.Listeners,
		limiter:        rate.NewLimiter(limit, burst),
	}
}

// RegisterGraph makes g available for StartRun by its WorkflowID.
func (e *Engine) RegisterGraph(g *Graph) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graphs[g.WorkflowID] = g
}

func (e *Engine) graph(workflowID string) (*Graph, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.graphs[workflowID]
	return g, ok
}

func (e *Engine) lockFor(instanceID string) *sync.Mutex {
	l, _ := e.instanceLocks.LoadOrStore(instanceID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (e *Engine) breakerConfigFor(workflowID, stepID string) BreakerConfig {
	if cfg, ok := e.breakers[workflowID+"\x00"+stepID]; ok {
		return cfg
	}
	return e.defaultBreaker
}

// StartRun begins a new instance of workflowID at its initial step,
// running the step lifecycle synchronously on the engine's worker pool
// until it suspends or reaches a terminal state.
func (e *Engine) StartRun(ctx context.Context, workflowID, instanceID string, trigger any) (Outcome, error) {
	g, ok := e.graph(workflowID)
	if !ok {
		return Outcome{}, NewRunError(ErrorKindUnknownWorkflow, workflowID, nil)
	}
	state := NewRunState(instanceID, workflowID, g.InitialID, time.Now())
	if err := e.repo.Save(ctx, state); err != nil {
		return Outcome{}, err
	}
	return e.run(ctx, g, state, trigger)
}

// ResumeRun delivers a resuming ChatRequest's input for messageID. If the
// suspension was an Async variant, taskOutput-style inputs are delivered
// via CompleteAsync instead; ResumeRun is for user-driven Suspend
// resumptions.
func (e *Engine) ResumeRun(ctx context.Context, messageID string, input any) (Outcome, error) {
	instanceIDAny, ok := e.messageIndex.Load(messageID)
	if !ok {
		return Outcome{}, NewRunError(ErrorKindInvalidResume, "unknown messageId", nil)
	}
	instanceID := instanceIDAny.(string)

	lock := e.lockFor(instanceID)
	lock.Lock()
	state, err := e.repo.FindByInstanceID(ctx, instanceID)
	lock.Unlock()
	if err != nil {
		return Outcome{}, err
	}
	if state.Status != StatusSuspended || state.SuspendedMessageID != messageID {
		return Outcome{}, NewRunError(ErrorKindInvalidResume, "run is not suspended on this messageId", nil)
	}
	if state.SuspendedIsAsync {
		return Outcome{}, NewRunError(ErrorKindInvalidResume, "messageId is awaiting an async task completion, not a resume", nil)
	}

	g, ok := e.graph(state.WorkflowID)
	if !ok {
		return Outcome{}, NewRunError(ErrorKindUnknownWorkflow, state.WorkflowID, nil)
	}

	e.messageIndex.Delete(messageID)
	state.SuspendedMessageID = ""
	state.NextSchemaRef = ""
	return e.run(ctx, g, state, input)
}

// CompleteAsync delivers a background task's output for messageID, treating
// it as step S's output (step 4 onward in §4.7.2) without re-executing S.
func (e *Engine) CompleteAsync(ctx context.Context, messageID string, taskOutput any) (Outcome, error) {
	instanceIDAny, ok := e.messageIndex.Load(messageID)
	if !ok {
		return Outcome{}, NewRunError(ErrorKindInvalidResume, "unknown messageId", nil)
	}
	instanceID := instanceIDAny.(string)

	state, err := e.repo.FindByInstanceID(ctx, instanceID)
	if err != nil {
		return Outcome{}, err
	}
	if state.Status != StatusSuspended || state.SuspendedMessageID != messageID || !state.SuspendedIsAsync {
		return Outcome{}, NewRunError(ErrorKindInvalidResume, "messageId is not an outstanding async task", nil)
	}

	g, ok := e.graph(state.WorkflowID)
	if !ok {
		return Outcome{}, NewRunError(ErrorKindUnknownWorkflow, state.WorkflowID, nil)
	}

	e.messageIndex.Delete(messageID)
	state.SuspendedMessageID = ""
	state.NextSchemaRef = ""
	step := g.Steps[state.CurrentStepID]
	return e.run(ctx, g, state, asyncResumeSignal{output: taskOutput, step: step})
}

// Cancel requests cancellation of instanceID. The run transitions to
// CANCELLED at its next await point; already-terminal runs are left
// unchanged.
func (e *Engine) Cancel(ctx context.Context, instanceID string) error {
	lock := e.lockFor(instanceID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.repo.FindByInstanceID(ctx, instanceID)
	if err != nil {
		return err
	}
	if isTerminal(state.Status) {
		return nil
	}
	state.CancelRequested = true
	if state.Status == StatusSuspended {
		state.Status = StatusCancelled
		state.SuspendedMessageID = ""
	}
	state.UpdatedAt = time.Now()
	return e.repo.Save(ctx, state)
}

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// asyncResumeSignal marks that run's input is a delivered async task
// output rather than fresh trigger/resume data, so the step loop skips
// re-invoking the executor and treats output as the step's result.
type asyncResumeSignal struct {
	output any
	step   *StepDefinition
}

// run executes the bounded-worker-pool submission for the step lifecycle
// loop over state, blocking the caller until the loop settles at a
// suspend point or terminal transition, per §4.7.1's "persisted after
// every step transition, before returning control to the caller".
func (e *Engine) run(ctx context.Context, g *Graph, state *RunState, input any) (Outcome, error) {
	lock := e.lockFor(state.InstanceID)
	resultCh := make(chan Outcome, 1)
	e.pool.Submit(func() {
		lock.Lock()
		defer lock.Unlock()
		resultCh <- e.stepLoop(ctx, g, state, input)
	})
	select {
	case out := <-resultCh:
		return out, out.Err
	case <-ctx.Done():
		return Outcome{InstanceID: state.InstanceID, WorkflowID: state.WorkflowID, Status: state.Status}, ctx.Err()
	}
}

func newMessageID() string { return uuid.NewString() }
