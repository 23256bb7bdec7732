// Package workflow implements the Workflow Graph Model and Workflow Engine:
// a durable, resumable step executor built from explicitly declared
// StepDefinition values, with retry, circuit-breaking, suspend/resume, and cancellation
// semantics layered over a pluggable persistence contract.
package workflow

import (
	"context"
	"fmt"
)

type (
	// VariantKind discriminates the outcome of one step invocation.
	VariantKind string

	// StepResult is the discriminated return value every step executor
	// produces. Exactly one of the Variant-specific fields is meaningful,
	// selected by Kind.
	StepResult struct {
		Kind VariantKind

		// Continue / Branch / Complete carry Data / Result as the step's
		// output, persisted to RunState.StepOutputs.
		Data any

		// Branch names the next step explicitly; must be one of the
		// current step's NextStepIDs.
		NextStepID string

		// Suspend fields.
		MessageID     string
		NextSchemaRef string

		// Async fields.
		TaskName       string
		TaskArgs       any
		PercentComplete int

		// Complete carries the run's final result.
		Result any

		// Fail carries the triggering error.
		Err error
	}

	// OnInvocationsLimit selects the behavior when a step's invocation
	// count exceeds its configured limit.
	OnInvocationsLimit string

	// Executor is the function body of a declared step. It receives the
	// resolved input (trigger data, previous step output, or an
	// instantiated property bag for a user-input step) and returns a
	// StepResult.
	Executor func(ctx context.Context, input any) (StepResult, error)

	// StepDefinition describes one node of the workflow graph.
	StepDefinition struct {
		// ID uniquely identifies the step within its workflow.
		ID string
		// Description documents the step's purpose for workflow metadata
		// queries (getWorkflowDetails).
		Description string
		// Executor is invoked to run the step.
		Executor Executor
		// NextStepIDs lists the steps reachable from this one via
		// Continue (first entry) or Branch (any entry).
		NextStepIDs []string
		// InvocationsLimit caps how many times this step may run within
		// one run before OnInvocationsLimit applies. Zero means
		// unlimited.
		InvocationsLimit int
		// OnInvocationsLimit selects STOP / LOOP_RESET / FAIL behavior
		// when InvocationsLimit is exceeded.
		OnInvocationsLimit OnInvocationsLimit
		// UserInputRequired marks a step whose input must be built from
		// a resuming ChatRequest's property bag rather than the previous
		// step's output.
		UserInputRequired bool
		// InputSchemaID names the schema the resuming request's
		// properties are instantiated against when UserInputRequired is
		// set.
		InputSchemaID string
		// OutputSchemaID names the schema describing this step's output
		// record, surfaced by getWorkflowSchemas; empty when the step's
		// output is not a schema-registered type.
		OutputSchemaID string
		// RetryPolicy governs re-execution after executor failure.
		RetryPolicy RetryPolicy
		// Deadline bounds one invocation of Executor. Zero means no
		// per-step deadline.
		Deadline DeadlineConfig
		// Initial marks the step the engine starts a new run at.
		Initial bool
		// Terminal marks a step whose Executor must only ever return
		// Complete.
		Terminal bool
	}

	// Graph is the validated, immutable definition of one workflow: its
	// steps and the initial step ID.
	Graph struct {
		WorkflowID  string
		Description string
		Steps       map[string]*StepDefinition
		InitialID   string
	}
)

const (
	VariantContinue VariantKind = "continue"
	VariantBranch   VariantKind = "branch"
	VariantSuspend  VariantKind = "suspend"
	VariantAsync    VariantKind = "async"
	VariantComplete VariantKind = "complete"
	VariantFail     VariantKind = "fail"
)

const (
	OnLimitStop      OnInvocationsLimit = "STOP"
	OnLimitLoopReset OnInvocationsLimit = "LOOP_RESET"
	OnLimitFail      OnInvocationsLimit = "FAIL"
)

// Continue builds a StepResult advancing to the step's first declared next
// step, carrying data as the step output.
func Continue(data any) StepResult { return StepResult{Kind: VariantContinue, Data: data} }

// Branch builds a StepResult advancing explicitly to nextStepID, which must
// be among the current step's NextStepIDs.
func Branch(nextStepID string, data any) StepResult {
	return StepResult{Kind: VariantBranch, NextStepID: nextStepID, Data: data}
}

// Suspend builds a StepResult pausing the run pending a resumeChat call
// keyed by messageID, describing the schema the resume's input must
// conform to.
func Suspend(messageID, nextSchemaRef string) StepResult {
	return StepResult{Kind: VariantSuspend, MessageID: messageID, NextSchemaRef: nextSchemaRef}
}

// Async builds a StepResult pausing the run while a named background task
// runs out of band, reporting pct complete to the caller.
func Async(taskName string, args any, pct int) StepResult {
	return StepResult{Kind: VariantAsync, TaskName: taskName, TaskArgs: args, PercentComplete: pct}
}

// Complete builds a StepResult terminating the run successfully with
// result.
func Complete(result any) StepResult { return StepResult{Kind: VariantComplete, Result: result} }

// Fail builds a StepResult terminating the run with err.
func Fail(err error) StepResult { return StepResult{Kind: VariantFail, Err: err} }

// NewGraph validates steps and constructs a Graph. Validation enforces:
// every NextStepIDs entry names a declared step, exactly one step is
// Initial and it is reachable, no step is both Initial and Terminal, and
// cyclic edges are only permitted into steps with a nonzero
// InvocationsLimit.
func NewGraph(workflowID string, steps []*StepDefinition) (*Graph, error) {
	g := &Graph{WorkflowID: workflowID, Steps: make(map[string]*StepDefinition, len(steps))}
	for _, s := range steps {
		if _, dup := g.Steps[s.ID]; dup {
			return nil, fmt.Errorf("workflow: duplicate step id %q", s.ID)
		}
		g.Steps[s.ID] = s
		if s.Initial {
			if g.InitialID != "" {
				return nil, fmt.Errorf("workflow: multiple initial steps (%q and %q)", g.InitialID, s.ID)
			}
			g.InitialID = s.ID
		}
	}
	if g.InitialID == "" {
		return nil, fmt.Errorf("workflow: no initial step declared")
	}
	if init := g.Steps[g.InitialID]; init.Terminal {
		return nil, fmt.Errorf("workflow: step %q cannot be both initial and terminal", g.InitialID)
	}

	for _, s := range g.Steps {
		if s.Terminal && len(s.NextStepIDs) > 0 {
			return nil, fmt.Errorf("workflow: terminal step %q declares outgoing edges %v", s.ID, s.NextStepIDs)
		}
		for _, next := range s.NextStepIDs {
			if _, ok := g.Steps[next]; !ok {
				return nil, fmt.Errorf("workflow: step %q references unknown next step %q", s.ID, next)
			}
		}
	}

	for id := range g.Steps {
		if reachesSelf(g, id) && g.Steps[id].InvocationsLimit <= 0 {
			return nil, fmt.Errorf("workflow: step %q is part of a cycle and requires a nonzero invocations limit", id)
		}
	}

	reachable := map[string]bool{g.InitialID: true}
	queue := []string{g.InitialID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range g.Steps[id].NextStepIDs {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	for id := range g.Steps {
		if !reachable[id] {
			return nil, fmt.Errorf("workflow: step %q is unreachable from initial step %q", id, g.InitialID)
		}
	}

	return g, nil
}

// reachesSelf reports whether id lies on a cycle, i.e. following NextStepIDs
// edges from id eventually leads back to id. Used to enforce that every
// step participating in a cycle carries a nonzero InvocationsLimit,
// regardless of the cycle's length.
func reachesSelf(g *Graph, id string) bool {
	visited := map[string]bool{}
	var queue []string
	queue = append(queue, g.Steps[id].NextStepIDs...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == id {
			return true
		}
		if visited[next] {
			continue
		}
		visited[next] = true
		step, ok := g.Steps[next]
		if !ok {
			continue
		}
		queue = append(queue, step.NextStepIDs...)
	}
	return false
}
