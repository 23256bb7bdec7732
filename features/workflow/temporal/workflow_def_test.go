package temporal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

func singleStepGraph(t *testing.T, executor workflow.Executor) *workflow.Graph {
	t.Helper()
	g, err := workflow.NewGraph("demo", []*workflow.StepDefinition{
		{ID: "start", Initial: true, Executor: executor},
	})
	require.NoError(t, err)
	return g
}

func registerGraph(env *testsuite.TestWorkflowEnvironment, e *Engine, g *workflow.Graph) {
	env.RegisterWorkflowWithOptions(e.makeWorkflowFunc(g), tempworkflowRegisterOptions(g.WorkflowID))
	for _, step := range g.Steps {
		env.RegisterActivityWithOptions(e.makeStepActivity(step), tempactivityRegisterOptions(activityName(g.WorkflowID, step.ID)))
	}
}

func TestWorkflowFunc_CompletesImmediately(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	e := &Engine{}
	g := singleStepGraph(t, func(_ context.Context, input any) (workflow.StepResult, error) {
		return workflow.Complete("done:" + input.(string)), nil
	})
	registerGraph(env, e, g)

	env.ExecuteWorkflow(workflowTypeName(g.WorkflowID), "trigger")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var result stepLoopResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, workflow.StatusCompleted, result.Status)
	require.Equal(t, "done:trigger", result.Result)
}

func TestWorkflowFunc_FailVariantFailsRun(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	e := &Engine{}
	g := singleStepGraph(t, func(_ context.Context, _ any) (workflow.StepResult, error) {
		return workflow.StepResult{Kind: workflow.VariantFail}, nil
	})
	registerGraph(env, e, g)

	env.ExecuteWorkflow(workflowTypeName(g.WorkflowID), "trigger")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var result stepLoopResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, workflow.StatusFailed, result.Status)
	require.Equal(t, "step failed", result.FailureMessage)
}

func TestWorkflowFunc_SuspendThenResumeViaSignal(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	e := &Engine{}
	g, err := workflow.NewGraph("demo-suspend", []*workflow.StepDefinition{
		{
			ID:      "ask",
			Initial: true,
			Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
				if input == "trigger" {
					return workflow.Suspend("msg-1", "schema-ref"), nil
				}
				return workflow.Complete("resumed:" + input.(string)), nil
			},
		},
	})
	require.NoError(t, err)
	registerGraph(env, e, g)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(resumeSignalName("msg-1"), "answer")
	}, 0)

	env.ExecuteWorkflow(workflowTypeName(g.WorkflowID), "trigger")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var result stepLoopResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, workflow.StatusCompleted, result.Status)
	require.Equal(t, "resumed:answer", result.Result)
}

func TestWorkflowFunc_InvocationsLimitStop(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	e := &Engine{}
	g, err := workflow.NewGraph("demo-limit", []*workflow.StepDefinition{
		{
			ID:      "loop",
			Initial: true,
			Executor: func(_ context.Context, _ any) (workflow.StepResult, error) {
				return workflow.Continue("again"), nil
			},
			NextStepIDs:        []string{"loop"},
			InvocationsLimit:   2,
			OnInvocationsLimit: workflow.OnLimitStop,
		},
	})
	require.NoError(t, err)
	registerGraph(env, e, g)

	env.ExecuteWorkflow(workflowTypeName(g.WorkflowID), "trigger")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var result stepLoopResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, workflow.StatusCompleted, result.Status)
}

func TestWorkflowFunc_UnknownResultKindFails(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	e := &Engine{}
	g := singleStepGraph(t, func(_ context.Context, _ any) (workflow.StepResult, error) {
		return workflow.StepResult{Kind: "bogus"}, nil
	})
	registerGraph(env, e, g)

	env.ExecuteWorkflow(workflowTypeName(g.WorkflowID), "trigger")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var result stepLoopResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, workflow.StatusFailed, result.Status)
}
