package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow/inmem"
)

func newTestEngine(t *testing.T, cfg workflow.EngineConfig) *workflow.Engine {
	t.Helper()
	if cfg.Repository == nil {
		cfg.Repository = inmem.NewContextRepository()
	}
	if cfg.RetryStore == nil {
		cfg.RetryStore = inmem.NewRetryStateStore()
	}
	return workflow.NewEngine(cfg)
}

func echoStep(id string, initial bool, next ...string) *workflow.StepDefinition {
	return &workflow.StepDefinition{
		ID:          id,
		Initial:     initial,
		NextStepIDs: next,
		Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
			return workflow.Continue(input), nil
		},
	}
}

func TestNewGraphValidation(t *testing.T) {
	t.Run("requires exactly one initial step", func(t *testing.T) {
		_, err := workflow.NewGraph("wf", []*workflow.StepDefinition{
			{ID: "a"},
			{ID: "b"},
		})
		require.Error(t, err)
	})

	t.Run("rejects initial-and-terminal", func(t *testing.T) {
		_, err := workflow.NewGraph("wf", []*workflow.StepDefinition{
			{ID: "a", Initial: true, Terminal: true},
		})
		require.Error(t, err)
	})

	t.Run("rejects unknown next step reference", func(t *testing.T) {
		_, err := workflow.NewGraph("wf", []*workflow.StepDefinition{
			{ID: "a", Initial: true, NextStepIDs: []string{"missing"}},
		})
		require.Error(t, err)
	})

	t.Run("rejects self-loop without invocation limit", func(t *testing.T) {
		_, err := workflow.NewGraph("wf", []*workflow.StepDefinition{
			{ID: "a", Initial: true, NextStepIDs: []string{"a"}},
		})
		require.Error(t, err)
	})

	t.Run("rejects duplicate step ids", func(t *testing.T) {
		_, err := workflow.NewGraph("wf", []*workflow.StepDefinition{
			{ID: "a", Initial: true},
			{ID: "a"},
		})
		require.Error(t, err)
	})

	t.Run("accepts a self-loop with a positive invocation limit", func(t *testing.T) {
		g, err := workflow.NewGraph("wf", []*workflow.StepDefinition{
			{ID: "a", Initial: true, NextStepIDs: []string{"a"}, InvocationsLimit: 3, OnInvocationsLimit: workflow.OnLimitStop},
		})
		require.NoError(t, err)
		assert.Equal(t, "a", g.InitialID)
	})
}

func TestStartRunCompletesLinearGraph(t *testing.T) {
	g, err := workflow.NewGraph("linear", []*workflow.StepDefinition{
		echoStep("start", true, "finish"),
		{
			ID:       "finish",
			Terminal: true,
			Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
				return workflow.Complete(input), nil
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	out, err := e.StartRun(context.Background(), "linear", "inst-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, out.Status)
	assert.Equal(t, "hello", out.Result)
}

func TestBranchRejectsUndeclaredNextStep(t *testing.T) {
	g, err := workflow.NewGraph("branchy", []*workflow.StepDefinition{
		{
			ID:          "start",
			Initial:     true,
			NextStepIDs: []string{"a"},
			Executor: func(_ context.Context, _ any) (workflow.StepResult, error) {
				return workflow.Branch("b", nil), nil
			},
		},
		{ID: "a", Terminal: true, Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
			return workflow.Complete(input), nil
		}},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	out, err := e.StartRun(context.Background(), "branchy", "inst-2", nil)
	require.Error(t, err)
	assert.Equal(t, workflow.StatusFailed, out.Status)
	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, workflow.ErrorKindInvalidBranch, re.Kind)
}

func TestInvocationLimitStopReturnsLastOutput(t *testing.T) {
	g, err := workflow.NewGraph("looped", []*workflow.StepDefinition{
		{
			ID:                 "loop",
			Initial:            true,
			NextStepIDs:        []string{"loop"},
			InvocationsLimit:   3,
			OnInvocationsLimit: workflow.OnLimitStop,
			Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
				n, _ := input.(int)
				return workflow.Continue(n + 1), nil
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	out, err := e.StartRun(context.Background(), "looped", "inst-3", 0)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, out.Status)
	assert.Equal(t, 3, out.Result)
}

func TestInvocationLimitFailRaisesError(t *testing.T) {
	g, err := workflow.NewGraph("looped-fail", []*workflow.StepDefinition{
		{
			ID:                 "loop",
			Initial:            true,
			NextStepIDs:        []string{"loop"},
			InvocationsLimit:   2,
			OnInvocationsLimit: workflow.OnLimitFail,
			Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
				n, _ := input.(int)
				return workflow.Continue(n + 1), nil
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	out, err := e.StartRun(context.Background(), "looped-fail", "inst-4", 0)
	require.Error(t, err)
	assert.Equal(t, workflow.StatusFailed, out.Status)
	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, workflow.ErrorKindInvocationLimitExceeded, re.Kind)
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	attempts := 0
	g, err := workflow.NewGraph("retrying", []*workflow.StepDefinition{
		{
			ID:      "flaky",
			Initial: true,
			RetryPolicy: workflow.RetryPolicy{
				MaxAttempts:        3,
				InitialInterval:    time.Millisecond,
				BackoffCoefficient: 1,
			},
			Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
				attempts++
				if attempts < 2 {
					return workflow.StepResult{}, workflow.NewRunError(workflow.ErrorKindExecutorError, "transient", nil)
				}
				return workflow.Complete(input), nil
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	out, err := e.StartRun(context.Background(), "retrying", "inst-5", "ok")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, out.Status)
	assert.Equal(t, 2, attempts)
}

func TestRetryExhaustionFailsRun(t *testing.T) {
	attempts := 0
	g, err := workflow.NewGraph("always-fails", []*workflow.StepDefinition{
		{
			ID:      "flaky",
			Initial: true,
			RetryPolicy: workflow.RetryPolicy{
				MaxAttempts:        2,
				InitialInterval:    time.Millisecond,
				BackoffCoefficient: 1,
			},
			Executor: func(_ context.Context, _ any) (workflow.StepResult, error) {
				attempts++
				return workflow.StepResult{}, errors.New("boom")
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	_, err = e.StartRun(context.Background(), "always-fails", "inst-6", nil)
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestNonRetryableErrorSkipsRetries(t *testing.T) {
	attempts := 0
	g, err := workflow.NewGraph("bad-request", []*workflow.StepDefinition{
		{
			ID:      "rejecting",
			Initial: true,
			RetryPolicy: workflow.RetryPolicy{
				MaxAttempts:     5,
				InitialInterval: time.Millisecond,
			},
			Executor: func(_ context.Context, _ any) (workflow.StepResult, error) {
				attempts++
				return workflow.StepResult{}, workflow.NewRunError(workflow.ErrorKindBadRequest, "nope", nil)
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	_, err = e.StartRun(context.Background(), "bad-request", "inst-7", nil)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	attempts := 0
	g, err := workflow.NewGraph("breaker-wf", []*workflow.StepDefinition{
		{
			ID:      "unstable",
			Initial: true,
			Executor: func(_ context.Context, _ any) (workflow.StepResult, error) {
				attempts++
				return workflow.StepResult{}, errors.New("down")
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{
		DefaultBreaker: workflow.BreakerConfig{FailureThreshold: 2, CooldownMs: 60_000},
	})
	e.RegisterGraph(g)

	_, err = e.StartRun(context.Background(), "breaker-wf", "inst-8a", nil)
	require.Error(t, err)
	_, err = e.StartRun(context.Background(), "breaker-wf", "inst-8b", nil)
	require.Error(t, err)
	attemptsAfterTwoRuns := attempts

	_, err = e.StartRun(context.Background(), "breaker-wf", "inst-8c", nil)
	require.Error(t, err)
	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, workflow.ErrorKindCircuitOpen, re.Kind)
	assert.Equal(t, attemptsAfterTwoRuns, attempts, "circuit open must short-circuit without invoking the executor")
}

func TestSuspendThenResumeDeliversInput(t *testing.T) {
	g, err := workflow.NewGraph("suspendable", []*workflow.StepDefinition{
		{
			ID:      "ask",
			Initial: true,
			Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
				if input == nil {
					return workflow.Suspend("msg-1", "schema://answer"), nil
				}
				return workflow.Continue(input), nil
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	out, err := e.StartRun(context.Background(), "suspendable", "inst-9", nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSuspended, out.Status)
	require.NotEmpty(t, out.MessageID)

	resumed, err := e.ResumeRun(context.Background(), out.MessageID, "the answer")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, resumed.Status)
	assert.Equal(t, "the answer", resumed.Result)
}

func TestResumeRejectsUnknownMessageID(t *testing.T) {
	e := newTestEngine(t, workflow.EngineConfig{})
	_, err := e.ResumeRun(context.Background(), "does-not-exist", "x")
	require.Error(t, err)
	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, workflow.ErrorKindInvalidResume, re.Kind)
}

func TestAsyncTaskCompletesViaCompleteAsync(t *testing.T) {
	g, err := workflow.NewGraph("async-wf", []*workflow.StepDefinition{
		{
			ID:          "enqueue",
			Initial:     true,
			NextStepIDs: []string{"done"},
			Executor: func(_ context.Context, _ any) (workflow.StepResult, error) {
				return workflow.Async("embed-document", map[string]any{"docId": "d1"}, 0), nil
			},
		},
		{
			ID:       "done",
			Terminal: true,
			Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
				return workflow.Complete(input), nil
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	out, err := e.StartRun(context.Background(), "async-wf", "inst-10", nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSuspended, out.Status)
	assert.Equal(t, "embed-document", out.TaskName)
	require.NotEmpty(t, out.MessageID)

	done, err := e.CompleteAsync(context.Background(), out.MessageID, "embedded")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, done.Status)
	assert.Equal(t, "embedded", done.Result)
}

func TestCompleteAsyncRejectsNonAsyncSuspension(t *testing.T) {
	g, err := workflow.NewGraph("sync-suspend", []*workflow.StepDefinition{
		{
			ID:      "ask",
			Initial: true,
			Executor: func(_ context.Context, _ any) (workflow.StepResult, error) {
				return workflow.Suspend("msg-sync", "schema://x"), nil
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	out, err := e.StartRun(context.Background(), "sync-suspend", "inst-11", nil)
	require.NoError(t, err)

	_, err = e.CompleteAsync(context.Background(), out.MessageID, "x")
	require.Error(t, err)
	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, workflow.ErrorKindInvalidResume, re.Kind)
}

func TestCancelStopsASuspendedRun(t *testing.T) {
	g, err := workflow.NewGraph("cancellable", []*workflow.StepDefinition{
		{
			ID:      "ask",
			Initial: true,
			Executor: func(_ context.Context, _ any) (workflow.StepResult, error) {
				return workflow.Suspend("msg-cancel", "schema://x"), nil
			},
		},
	})
	require.NoError(t, err)

	e := newTestEngine(t, workflow.EngineConfig{})
	e.RegisterGraph(g)

	out, err := e.StartRun(context.Background(), "cancellable", "inst-12", nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSuspended, out.Status)

	require.NoError(t, e.Cancel(context.Background(), "inst-12"))

	_, err = e.ResumeRun(context.Background(), out.MessageID, "too late")
	require.Error(t, err)
}

func TestStartRunRejectsUnknownWorkflow(t *testing.T) {
	e := newTestEngine(t, workflow.EngineConfig{})
	_, err := e.StartRun(context.Background(), "nope", "inst-13", nil)
	require.Error(t, err)
	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, workflow.ErrorKindUnknownWorkflow, re.Kind)
}
