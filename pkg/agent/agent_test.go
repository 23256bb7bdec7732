package agent_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/agent"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/prompt"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/schema"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/tracing"
)

func assistantText(text string) *model.Response {
	return &model.Response{
		Choices: []model.Choice{{
			Message:      model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}},
			FinishReason: model.FinishReasonStop,
		}},
		Usage: model.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func newTestAgent(t *testing.T, client *model.FakeClient) *agent.Agent {
	t.Helper()
	return agent.New(agent.Config{
		ID:      "test-agent",
		Client:  client,
		Prompts: prompt.NewRegistry(prompt.NewInmemStore(), nil, nil),
		Schemas: schema.NewRegistry(),
	})
}

func TestExecuteTextReturnsFirstChoiceText(t *testing.T) {
	client := &model.FakeClient{Responses: []*model.Response{assistantText("hello there")}}
	a := newTestAgent(t, client)

	resp, err := a.ExecuteText(context.Background(), model.Request{Model: "m1"}, tracing.RequestContext{ContextID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Result)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestExecuteTextPropagatesProviderError(t *testing.T) {
	client := &model.FakeClient{Errs: []error{&model.ProviderError{Provider: "fake", Kind: model.ErrorKindRateLimited}}}
	a := newTestAgent(t, client)

	_, err := a.ExecuteText(context.Background(), model.Request{Model: "m1"}, tracing.RequestContext{})
	require.Error(t, err)
	pe, ok := model.AsProviderError(err)
	require.True(t, ok)
	assert.True(t, pe.Retryable())
}

type weatherReport struct {
	City        string `json:"city" schema:"name=city"`
	TempCelsius int    `json:"tempCelsius" schema:"name=tempCelsius"`
}

func TestExecuteStructuredDecodesValidJSON(t *testing.T) {
	raw, err := json.Marshal(weatherReport{City: "Lyon", TempCelsius: 21})
	require.NoError(t, err)
	client := &model.FakeClient{Responses: []*model.Response{assistantText(string(raw))}}
	a := newTestAgent(t, client)

	resp, err := agent.ExecuteStructured[weatherReport](context.Background(), a, model.Request{Model: "m1"}, tracing.RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "Lyon", resp.Result.City)
	assert.Equal(t, 21, resp.Result.TempCelsius)
}

func TestExecuteStructuredRejectsMalformedJSON(t *testing.T) {
	client := &model.FakeClient{Responses: []*model.Response{assistantText("not json")}}
	a := newTestAgent(t, client)

	_, err := agent.ExecuteStructured[weatherReport](context.Background(), a, model.Request{Model: "m1"}, tracing.RequestContext{})
	require.Error(t, err)
	var parseErr *agent.StructuredParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestExecuteWithPromptRendersTemplate(t *testing.T) {
	client := &model.FakeClient{Responses: []*model.Response{assistantText("ack")}}
	a := newTestAgent(t, client)
	reg := prompt.NewRegistry(prompt.NewInmemStore(), nil, nil)
	a2 := agent.New(agent.Config{ID: "a2", Client: client, Prompts: reg, Schemas: schema.NewRegistry()})

	_, err := reg.Save(context.Background(), &prompt.Prompt{Method: "greet", Language: "en", Message: "Hello {{name}}"})
	require.NoError(t, err)

	resp, err := a2.ExecuteWithPrompt(context.Background(), "greet", "en", map[string]string{"name": "Ada"}, model.Request{Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "ack", resp.Result)
	require.Len(t, client.Calls, 1)
	sent := client.Calls[0].Messages[0]
	assert.Equal(t, "Hello Ada", textPartOf(t, sent))
}

func textPartOf(t *testing.T, msg model.Message) string {
	t.Helper()
	for _, p := range msg.Parts {
		if tp, ok := p.(model.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}

type echoTool struct{}

func (echoTool) Name() string                 { return "echo" }
func (echoTool) Description() string          { return "echoes its input" }
func (echoTool) InputSchema() map[string]any  { return map[string]any{"type": "object"} }
func (echoTool) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	return string(args), nil
}

func toolCallResponse(toolCallID, name, args string) *model.Response {
	return &model.Response{
		Choices: []model.Choice{{
			Message: model.Message{
				Role:  model.RoleAssistant,
				Parts: []model.Part{model.ToolCallPart{ID: toolCallID, Name: name, Input: json.RawMessage(args)}},
			},
			FinishReason: model.FinishReasonToolCalls,
			ToolCalls:    []model.ToolCallPart{{ID: toolCallID, Name: name, Input: json.RawMessage(args)}},
		}},
	}
}

func TestExecuteWithToolsDispatchesAndTerminates(t *testing.T) {
	client := &model.FakeClient{Responses: []*model.Response{
		toolCallResponse("call1", "echo", `{"x":1}`),
		assistantText("done"),
	}}
	a := newTestAgent(t, client)

	resp, err := a.ExecuteWithTools(context.Background(), model.Request{Model: "m1"}, []agent.Tool{echoTool{}}, tracing.RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Result)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "echo", resp.ToolCalls[0].Name)
	assert.Equal(t, `{"x":1}`, resp.ToolCalls[0].Result)
}

func TestExecuteWithToolsExceedsDepthCap(t *testing.T) {
	responses := make([]*model.Response, 0, 10)
	for i := 0; i < 10; i++ {
		responses = append(responses, toolCallResponse("call", "echo", "{}"))
	}
	client := &model.FakeClient{Responses: responses}
	a := agent.New(agent.Config{
		ID:           "depth-agent",
		Client:       client,
		Prompts:      prompt.NewRegistry(prompt.NewInmemStore(), nil, nil),
		Schemas:      schema.NewRegistry(),
		MaxToolDepth: 2,
	})

	_, err := a.ExecuteWithTools(context.Background(), model.Request{Model: "m1"}, []agent.Tool{echoTool{}}, tracing.RequestContext{})
	require.ErrorIs(t, err, agent.ErrToolDepthExceeded)
}

func TestExecuteWithToolsReportsUnknownTool(t *testing.T) {
	client := &model.FakeClient{Responses: []*model.Response{
		toolCallResponse("call1", "mystery", "{}"),
		assistantText("ok"),
	}}
	a := newTestAgent(t, client)

	resp, err := a.ExecuteWithTools(context.Background(), model.Request{Model: "m1"}, []agent.Tool{echoTool{}}, tracing.RequestContext{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Error(t, resp.ToolCalls[0].Err)
}

func TestSequentialRunsStepsInOrder(t *testing.T) {
	seq := agent.Sequential{Steps: []agent.Step{
		func(_ context.Context, in string) (string, error) { return in + "-a", nil },
		func(_ context.Context, in string) (string, error) { return in + "-b", nil },
	}}
	out, err := seq.Run(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, "start-a-b", out)
}

func TestLoopStopsWhenUntilSatisfied(t *testing.T) {
	calls := 0
	loop := agent.Loop{
		Step: func(_ context.Context, in string) (string, error) {
			calls++
			return in + "x", nil
		},
		Until:         func(out string) bool { return len(out) >= 3 },
		MaxIterations: 10,
	}
	out, err := loop.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "xxx", out)
	assert.Equal(t, 3, calls)
}

func TestLoopExceedsMaxIterations(t *testing.T) {
	loop := agent.Loop{
		Step:          func(_ context.Context, in string) (string, error) { return in + "x", nil },
		Until:         func(string) bool { return false },
		MaxIterations: 3,
	}
	_, err := loop.Run(context.Background(), "")
	require.ErrorIs(t, err, agent.ErrLoopExceeded)
}

func TestAsToolDelegatesToNestedAgent(t *testing.T) {
	client := &model.FakeClient{Responses: []*model.Response{assistantText("nested result")}}
	nested := newTestAgent(t, client)
	tool := agent.AsTool{Agent: nested, ToolName: "nested_agent", Desc: "delegates to a nested agent"}

	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"question":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "nested result", out)
}
