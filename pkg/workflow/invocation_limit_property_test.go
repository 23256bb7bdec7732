package workflow_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

// loopingGraph builds a single self-looping step with the given invocation
// limit and overflow behavior, counting how many times Executor actually
// runs.
func loopingGraph(t *testing.T, limit int, onLimit workflow.OnInvocationsLimit) (*workflow.Graph, *int) {
	t.Helper()
	invocations := 0
	g, err := workflow.NewGraph("looped-property", []*workflow.StepDefinition{
		{
			ID:                 "loop",
			Initial:            true,
			NextStepIDs:        []string{"loop"},
			InvocationsLimit:   limit,
			OnInvocationsLimit: onLimit,
			Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
				invocations++
				n, _ := input.(int)
				return workflow.Continue(n + 1), nil
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return g, &invocations
}

// TestInvocationsLimitNeverExceeded checks invariant 3: for any configured
// InvocationsLimit, a step never executes more than limit+1 times before
// its OnInvocationsLimit behavior halts the run, regardless of whether the
// overflow policy is STOP or FAIL.
func TestInvocationsLimitNeverExceeded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	onLimits := []workflow.OnInvocationsLimit{workflow.OnLimitStop, workflow.OnLimitFail}

	properties.Property("executor never runs past limit+1 invocations", prop.ForAll(
		func(limit int, onLimitIdx int) bool {
			onLimit := onLimits[onLimitIdx%len(onLimits)]
			g, invocations := loopingGraph(t, limit, onLimit)

			e := newTestEngine(t, workflow.EngineConfig{})
			e.RegisterGraph(g)

			instanceID := fmt.Sprintf("inst-%d-%d", limit, onLimitIdx)
			_, _ = e.StartRun(context.Background(), "looped-property", instanceID, 0)

			return *invocations <= limit+1
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, len(onLimits)-1),
	))

	properties.TestingRun(t)
}

// TestInvocationsLimitStopReturnsExactLimitInvocations checks that STOP
// always runs the step exactly `limit` times (not limit+1): the overflow
// check happens before the (limit+1)-th invocation, so the run completes
// with the output of the limit-th invocation.
func TestInvocationsLimitStopReturnsExactLimitInvocations(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("STOP halts exactly at the configured limit", prop.ForAll(
		func(limit int) bool {
			g, invocations := loopingGraph(t, limit, workflow.OnLimitStop)

			e := newTestEngine(t, workflow.EngineConfig{})
			e.RegisterGraph(g)

			instanceID := fmt.Sprintf("inst-stop-%d", limit)
			out, err := e.StartRun(context.Background(), "looped-property", instanceID, 0)
			if err != nil {
				return false
			}
			return *invocations == limit && out.Status == workflow.StatusCompleted && out.Result == limit
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
