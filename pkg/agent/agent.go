// Package agent implements the Agent Layer: typed LLM invocations (text,
// structured, prompt-templated), tool dispatch, and agent composition
// (sequential, loop, agent-as-tool), backed by a pkg/model.Client and traced
// through pkg/tracing.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/prompt"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/schema"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/tracing"
)

type (
	// Tool is a named, typed function an Agent can expose to the model as
	// callable. Implementations receive the raw JSON arguments the model
	// supplied and return a string result appended to the transcript as a
	// tool message.
	Tool interface {
		// Name is the identifier the model uses to request this tool.
		Name() string
		// Description is surfaced to the model to decide when to call the
		// tool.
		Description() string
		// InputSchema is the JSON Schema describing the tool's arguments.
		InputSchema() map[string]any
		// Invoke executes the tool against raw JSON arguments, returning a
		// string result (or an error, which is surfaced to the model as a
		// tool error message per the tool-call loop contract).
		Invoke(ctx context.Context, args json.RawMessage) (string, error)
	}

	// AgentResponse wraps a typed result alongside the raw model usage for
	// the call(s) that produced it.
	AgentResponse[T any] struct {
		Result T
		Usage  model.TokenUsage
		// ToolCalls records every tool invocation made while producing
		// Result, in order, for executeWithTools responses.
		ToolCalls []ToolInvocation
	}

	// ToolInvocation records one dispatched tool call and its result.
	ToolInvocation struct {
		Name   string
		Args   json.RawMessage
		Result string
		Err    error
	}

	// Agent executes model calls in one of four modes over a shared
	// pkg/model.Client, tracing every round-trip via a tracing.Sink.
	Agent struct {
		id           string
		client       model.Client
		prompts      *prompt.Registry
		schemas      *schema.Registry
		sink         tracing.Sink
		maxToolDepth int
		defaultModel string
	}

	// Config configures a new Agent.
	Config struct {
		// ID identifies the agent for tracing context (contextId).
		ID string
		// Client is the model client the agent issues calls through.
		Client model.Client
		// Prompts resolves prompt templates for ExecuteWithPrompt.
		Prompts *prompt.Registry
		// Schemas renders JSON Schemas for ExecuteStructured.
		Schemas *schema.Registry
		// Sink receives a trace record after every model round-trip. A
		// tracing failure must never fail the agent call; use
		// tracing.NewNoopSink() if tracing is not required.
		Sink tracing.Sink
		// MaxToolDepth bounds the tool-call loop in ExecuteWithTools. Zero
		// defaults to 8.
		MaxToolDepth int
		// DefaultModel is the model identifier used by composition helpers
		// (AsTool) that construct a Request without an explicit caller-
		// supplied one.
		DefaultModel string
	}
)

// ErrToolDepthExceeded is raised when ExecuteWithTools's tool-call loop runs
// past its configured depth without the model emitting a terminal message.
var ErrToolDepthExceeded = errors.New("agent: tool-call depth exceeded")

// StructuredParseError is raised when a model's structured-output response
// does not conform to the requested schema or cannot be decoded into the
// target Go type.
type StructuredParseError struct {
	SchemaID string
	Cause    error
}

func (e *StructuredParseError) Error() string {
	return fmt.Sprintf("agent: structured response did not match schema %s: %v", e.SchemaID, e.Cause)
}

func (e *StructuredParseError) Unwrap() error { return e.Cause }

// New constructs an Agent from cfg.
func New(cfg Config) *Agent {
	depth := cfg.MaxToolDepth
	if depth <= 0 {
		depth = 8
	}
	sink := cfg.Sink
	if sink == nil {
		sink = tracing.NewNoopSink()
	}
	return &Agent{
		id:           cfg.ID,
		client:       cfg.Client,
		prompts:      cfg.Prompts,
		schemas:      cfg.Schemas,
		sink:         sink,
		maxToolDepth: depth,
		defaultModel: cfg.DefaultModel,
	}
}

// ID returns the agent's identifier.
func (a *Agent) ID() string { return a.id }

func userMessage(text string) model.Message {
	return model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: text}}}
}

func newTextRequest(a *Agent, text string) model.Request {
	return model.Request{Model: a.defaultModel, Messages: []model.Message{userMessage(text)}}
}

func textOf(msg model.Message) string {
	var out string
	for _, p := range msg.Parts {
		if t, ok := p.(model.TextPart); ok {
			out += t.Text
		}
	}
	return out
}

func (a *Agent) trace(ctx context.Context, rc tracing.RequestContext, req model.Request, resp *model.Response, errMsg string) {
	record := tracing.ModelTraceRecord{
		ContextID:        rc.ContextID,
		ContextType:      rc.ContextType,
		RequestType:      rc.RequestType,
		PromptTemplate:   rc.PromptTemplate,
		PromptID:         rc.PromptID,
		Variables:        rc.Variables,
		ModelID:          req.Model,
		ErrorMessage:     errMsg,
	}
	if resp != nil {
		record.ExecutionTimeMS = resp.Trace.ExecutionTimeMS
		record.PromptTokens = resp.Usage.PromptTokens
		record.CompletionTokens = resp.Usage.CompletionTokens
		if len(resp.Choices) > 0 {
			record.Response = textOf(resp.Choices[0].Message)
		}
	}
	// Tracing is best-effort: failures are never surfaced to the caller.
	a.sink.Trace(ctx, record)
}
