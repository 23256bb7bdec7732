// Package model defines the provider-agnostic request/response and streaming
// types used by the Agent Layer (pkg/agent) to invoke heterogeneous LLM
// providers through one uniform contract: text-in/text-out, image input,
// streaming, and tool-calling.
//
// Concrete provider adapters (features/model/anthropic, features/model/openai,
// features/model/bedrock) are external collaborators: this package only
// describes the interface contract they must satisfy.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

type (
	// Role identifies the speaker for a Message.
	Role string

	// ContentKind identifies the kind of a content Part.
	ContentKind string

	// Part is a single content block within a Message. Concrete kinds are
	// TextPart, ImagePart, ImageURLPart, ThinkingPart, ToolCallPart, and
	// ToolResultPart.
	Part interface {
		Kind() ContentKind
	}

	// TextPart is plain user-visible text.
	TextPart struct{ Text string }

	// ImagePart carries inline image bytes.
	ImagePart struct {
		MIMEType string
		Bytes    []byte
	}

	// ImageURLPart references an externally hosted image.
	ImageURLPart struct{ URL string }

	// ThinkingPart carries provider-issued reasoning content, treated as
	// opaque by callers.
	ThinkingPart struct {
		Text      string
		Signature string
	}

	// ToolCallPart declares a tool invocation requested by the assistant.
	ToolCallPart struct {
		ID    string
		Name  string
		Input json.RawMessage
	}

	// ToolResultPart carries the result of a prior ToolCallPart back to the
	// model on a subsequent turn.
	ToolResultPart struct {
		ToolCallID string
		Content    string
		IsError    bool
	}

	// Message is a single entry in a conversation transcript.
	Message struct {
		Role  Role
		Parts []Part
	}

	// ToolDefinition describes a tool exposed to the model for the duration
	// of one Request.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema map[string]any
	}

	// ResponseFormatKind selects how the model must format its output.
	ResponseFormatKind string

	// ResponseFormat constrains model output to plain text, a generic JSON
	// object ("JSON mode"), or a specific JSON Schema ("JSON-schema mode").
	ResponseFormat struct {
		Kind   ResponseFormatKind
		Schema map[string]any // required when Kind == ResponseFormatJSONSchema
		Name   string         // schema name surfaced to providers that require one
	}

	// Request captures the inputs for one model invocation.
	Request struct {
		Model          string
		Messages       []Message
		Temperature    *float32
		TopP           *float32
		MaxTokens      int
		ResponseFormat *ResponseFormat
		Tools          []ToolDefinition
		Stream         bool
	}

	// TokenUsage tracks token counts for a model call.
	TokenUsage struct {
		PromptTokens     int
		CompletionTokens int
		TotalTokens      int
	}

	// FinishReason records why generation stopped.
	FinishReason string

	// Choice is a single candidate completion returned by the provider.
	Choice struct {
		Index        int
		Message      Message
		FinishReason FinishReason
		ToolCalls    []ToolCallPart
		LogProbs     []float64
	}

	// TraceInfo is a sub-record describing the mechanics of one round-trip,
	// consumed by the Tracing Sink (pkg/tracing) to build a full
	// ModelTraceRecord.
	TraceInfo struct {
		Model             string
		ExecutionTimeMS   int64
		PromptTokens      int
		CompletionTokens  int
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Choices []Choice
		Usage   TokenUsage
		Trace   TraceInfo
	}

	// Chunk is one increment of a streaming response.
	Chunk struct {
		Type         ChunkType
		Delta        string
		ToolCall     *ToolCallPart
		FinishReason FinishReason
		Usage        *TokenUsage
	}

	// ChunkType classifies a streaming Chunk.
	ChunkType string

	// Stream is a cold, push-based source of Chunks. Callers subscribe once;
	// Cancel stops the underlying provider request and releases resources
	// within a bounded time, per the design notes' decision to keep streaming
	// as a narrow cold-stream contract independent of any stream library.
	Stream interface {
		// Subscribe registers callbacks and begins delivering Chunks.
		// onNext is invoked once per Chunk in order; onComplete is invoked
		// exactly once after the last Chunk if the stream finished
		// normally; onError is invoked at most once, instead of
		// onComplete, if the stream failed or was canceled.
		Subscribe(onNext func(Chunk), onError func(error), onComplete func())
		// Cancel stops delivery and releases resources. Safe to call more
		// than once; safe to call before or after completion.
		Cancel()
	}

	// Client is the provider-agnostic model client.
	Client interface {
		// TextToText performs a non-streaming invocation.
		TextToText(ctx context.Context, req Request) (*Response, error)
		// TextToTextStreaming performs a streaming invocation.
		TextToTextStreaming(ctx context.Context, req Request) (Stream, error)
		// TextToImage generates image content from a text prompt.
		TextToImage(ctx context.Context, req Request) (*Response, error)
		// ImageToText describes or extracts text from image input.
		ImageToText(ctx context.Context, req Request) (*Response, error)
		// Transcribe converts audio bytes into text.
		Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	}
)

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

const (
	ContentKindText       ContentKind = "text"
	ContentKindImage      ContentKind = "image"
	ContentKindImageURL   ContentKind = "image_url"
	ContentKindThinking   ContentKind = "thinking"
	ContentKindToolCall   ContentKind = "tool_call"
	ContentKindToolResult ContentKind = "tool_result"
)

func (TextPart) Kind() ContentKind       { return ContentKindText }
func (ImagePart) Kind() ContentKind      { return ContentKindImage }
func (ImageURLPart) Kind() ContentKind   { return ContentKindImageURL }
func (ThinkingPart) Kind() ContentKind   { return ContentKindThinking }
func (ToolCallPart) Kind() ContentKind   { return ContentKindToolCall }
func (ToolResultPart) Kind() ContentKind { return ContentKindToolResult }

const (
	ResponseFormatText       ResponseFormatKind = "text"
	ResponseFormatJSON       ResponseFormatKind = "json"
	ResponseFormatJSONSchema ResponseFormatKind = "json_schema"
)

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonContent   FinishReason = "content_filter"
)

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeToolCall ChunkType = "tool_call"
	ChunkTypeUsage    ChunkType = "usage"
	ChunkTypeStop     ChunkType = "stop"
)

// ErrStreamingUnsupported indicates the provider does not support streaming.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")
