package agent

import (
	"context"
	"time"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/tracing"
)

// ExecuteWithTools runs the tool-call loop: issue req, dispatch any
// requested tool calls against tools, append their results as tool
// messages, and repeat until the model returns a message with no tool
// calls or the configured MaxToolDepth is exhausted.
func (a *Agent) ExecuteWithTools(ctx context.Context, req model.Request, tools []Tool, rc tracing.RequestContext) (*AgentResponse[string], error) {
	if rc.RequestType == "" {
		rc.RequestType = tracing.RequestTypeTextToText
	}
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = model.ToolDefinition{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()}
	}
	req.Tools = defs

	var usage model.TokenUsage
	var invocations []ToolInvocation

	for depth := 0; ; depth++ {
		if depth >= a.maxToolDepth {
			return nil, ErrToolDepthExceeded
		}

		start := time.Now()
		resp, err := a.client.TextToText(ctx, req)
		if resp != nil {
			resp.Trace.ExecutionTimeMS = time.Since(start).Milliseconds()
		}
		if err != nil {
			a.trace(ctx, rc, req, resp, err.Error())
			return nil, err
		}
		a.trace(ctx, rc, req, resp, "")

		if len(resp.Choices) == 0 {
			return nil, errEmptyResponse
		}
		choice := resp.Choices[0]
		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens

		req.Messages = append(req.Messages, choice.Message)

		if len(choice.ToolCalls) == 0 || choice.FinishReason != model.FinishReasonToolCalls {
			return &AgentResponse[string]{
				Result:    textOf(choice.Message),
				Usage:     usage,
				ToolCalls: invocations,
			}, nil
		}

		for _, call := range choice.ToolCalls {
			tool, ok := byName[call.Name]
			var result string
			var toolErr error
			if !ok {
				toolErr = &UnknownToolError{Name: call.Name}
			} else {
				result, toolErr = tool.Invoke(ctx, call.Input)
			}
			invocations = append(invocations, ToolInvocation{Name: call.Name, Args: call.Input, Result: result, Err: toolErr})

			content := result
			isError := toolErr != nil
			if isError {
				content = toolErr.Error()
			}
			req.Messages = append(req.Messages, model.Message{
				Role: model.RoleTool,
				Parts: []model.Part{model.ToolResultPart{
					ToolCallID: call.ID,
					Content:    content,
					IsError:    isError,
				}},
			})
		}
	}
}

// UnknownToolError is returned as a tool result when the model requests a
// tool name not present in the dispatch table passed to ExecuteWithTools.
type UnknownToolError struct{ Name string }

func (e *UnknownToolError) Error() string { return "agent: unknown tool requested: " + e.Name }
