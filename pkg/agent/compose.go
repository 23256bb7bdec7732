package agent

import (
	"context"
	"encoding/json"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/tracing"
)

type (
	// Step is one stage of a Sequential or Loop composition: given the
	// previous stage's output text (or the initial input), produce the next
	// stage's output text.
	Step func(ctx context.Context, input string) (string, error)

	// Sequential runs a fixed ordered chain of Steps, feeding each step's
	// output as the next step's input.
	Sequential struct {
		Steps []Step
	}

	// Loop repeats a single Step until Until reports true on the latest
	// output, or MaxIterations is reached.
	Loop struct {
		Step          Step
		Until         func(output string) bool
		MaxIterations int
	}
)

// ErrLoopExceeded is returned when a Loop composition exhausts
// MaxIterations without Until reporting completion.
var ErrLoopExceeded = &loopExceededError{}

type loopExceededError struct{}

func (*loopExceededError) Error() string { return "agent: loop exceeded max iterations" }

// Run executes the chain in order, starting from input.
func (s Sequential) Run(ctx context.Context, input string) (string, error) {
	out := input
	for _, step := range s.Steps {
		next, err := step(ctx, out)
		if err != nil {
			return "", err
		}
		out = next
	}
	return out, nil
}

// Run executes the loop, starting from input, until Until(output) is true
// or MaxIterations is exhausted.
func (l Loop) Run(ctx context.Context, input string) (string, error) {
	max := l.MaxIterations
	if max <= 0 {
		max = 1
	}
	out := input
	for i := 0; i < max; i++ {
		next, err := l.Step(ctx, out)
		if err != nil {
			return "", err
		}
		out = next
		if l.Until != nil && l.Until(out) {
			return out, nil
		}
	}
	if l.Until == nil {
		return out, nil
	}
	return "", ErrLoopExceeded
}

// AsTool adapts an Agent into a Tool so it can be called by another Agent's
// ExecuteWithTools loop. The nested agent receives the tool call's raw JSON
// arguments as the text of a single user message and its ExecuteText result
// text becomes the tool result.
type AsTool struct {
	Agent       *Agent
	ToolName    string
	Desc        string
	ArgsSchema  map[string]any
	ContextType string // defaults to "agent_tool" when empty
}

func (t AsTool) Name() string                  { return t.ToolName }
func (t AsTool) Description() string           { return t.Desc }
func (t AsTool) InputSchema() map[string]any    { return t.ArgsSchema }

func (t AsTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	contextType := t.ContextType
	if contextType == "" {
		contextType = "agent_tool"
	}
	rc := tracing.RequestContext{
		ContextID:   t.Agent.ID(),
		ContextType: contextType,
		RequestType: tracing.RequestTypeTextToText,
	}
	req := newTextRequest(t.Agent, string(args))
	resp, err := t.Agent.ExecuteText(ctx, req, rc)
	if err != nil {
		return "", err
	}
	return resp.Result, nil
}
