// Package bedrock implements pkg/model.Client over the AWS Bedrock Runtime
// Converse API, an external collaborator per spec.md §1 — a thin,
// swappable adapter proving pkg/model's contract is satisfiable, mirroring
// the teacher's features/model/bedrock split from its own model package.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client the
// adapter depends on, so tests can substitute a fake in place of the real
// *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Options configures the Bedrock adapter.
type Options struct {
	// DefaultModel is used when a Request leaves Model empty.
	DefaultModel string
	// MaxTokens is the default completion cap when a Request leaves
	// MaxTokens unset.
	MaxTokens int
	// Temperature is the default sampling temperature when a Request
	// leaves Temperature unset.
	Temperature float32
}

// Client implements model.Client over AWS Bedrock's Converse API. It does
// not implement TextToImage or Transcribe: Bedrock Converse has no
// corresponding capability, so those return a *model.ProviderError of kind
// ErrorKindBadRequest. ImageToText is supported: Converse accepts image
// content blocks directly within a normal message.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	maxTokens    int
	temperature  float32
}

// New builds a Client from runtime and opts.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	return &Client{runtime: runtime, defaultModel: opts.DefaultModel, maxTokens: opts.MaxTokens, temperature: opts.Temperature}, nil
}

// TextToText issues a Converse call.
func (c *Client) TextToText(ctx context.Context, req model.Request) (*model.Response, error) {
	parts, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	output, err := c.runtime.Converse(ctx, c.buildConverseInput(parts, req))
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(output, parts.toolNameProvToCanonical)
}

// TextToTextStreaming issues a ConverseStream call.
func (c *Client) TextToTextStreaming(ctx context.Context, req model.Request) (model.Stream, error) {
	parts, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	out, err := c.runtime.ConverseStream(ctx, c.buildConverseStreamInput(parts, req))
	if err != nil {
		return nil, translateError(err)
	}
	stream := out.GetStream()
	if stream == nil {
		return nil, errors.New("bedrock: stream output missing event stream")
	}
	return newStreamer(ctx, stream, parts.toolNameProvToCanonical), nil
}

// TextToImage is unsupported by the Converse API.
func (c *Client) TextToImage(context.Context, model.Request) (*model.Response, error) {
	return nil, unsupported("textToImage")
}

// ImageToText describes image content supplied as an ImagePart within the
// request's messages, via a normal Converse call.
func (c *Client) ImageToText(ctx context.Context, req model.Request) (*model.Response, error) {
	return c.TextToText(ctx, req)
}

// Transcribe is unsupported: Bedrock Converse has no audio transcription
// capability (that lives in Amazon Transcribe, a separate service).
func (c *Client) Transcribe(context.Context, []byte, string) (string, error) {
	return "", unsupported("transcribe")
}

func unsupported(op string) error {
	return &model.ProviderError{Provider: "bedrock", Kind: model.ErrorKindBadRequest, Message: fmt.Sprintf("bedrock: %s is not supported by the Converse API", op)}
}

type requestParts struct {
	modelID                 string
	messages                []brtypes.Message
	system                  []brtypes.SystemContentBlock
	toolConfig              *brtypes.ToolConfiguration
	toolNameCanonicalToProv map[string]string
	toolNameProvToCanonical map[string]string
}

func (c *Client) prepareRequest(req model.Request) (*requestParts, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	toolConfig, canonToProv, provToCanon, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}
	messages, system, err := encodeMessages(req.Messages, canonToProv)
	if err != nil {
		return nil, err
	}
	return &requestParts{
		modelID:                 modelID,
		messages:                messages,
		system:                  system,
		toolConfig:              toolConfig,
		toolNameCanonicalToProv: canonToProv,
		toolNameProvToCanonical: provToCanon,
	}, nil
}

func (c *Client) buildConverseInput(parts *requestParts, req model.Request) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(parts.modelID),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := c.inferenceConfig(req); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input
}

func (c *Client) buildConverseStreamInput(parts *requestParts, req model.Request) *bedrockruntime.ConverseStreamInput {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(parts.modelID),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := c.inferenceConfig(req); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input
}

func (c *Client) inferenceConfig(req model.Request) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	tokens := req.MaxTokens
	if tokens <= 0 {
		tokens = c.maxTokens
	}
	if tokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(tokens))
	}
	temp := c.temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	if temp > 0 {
		cfg.Temperature = aws.Float32(temp)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func translateError(err error) error {
	if isRateLimited(err) {
		return &model.ProviderError{Provider: "bedrock", Kind: model.ErrorKindRateLimited, Cause: err}
	}
	if isAuthError(err) {
		return &model.ProviderError{Provider: "bedrock", Kind: model.ErrorKindProviderAuth, Cause: err}
	}
	return &model.ProviderError{Provider: "bedrock", Kind: model.ErrorKindProviderUnavailable, Cause: err}
}

// isRateLimited reports whether err represents a provider rate-limiting
// condition: a ThrottlingException error code.
func isRateLimited(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ThrottlingException"
}

func isAuthError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			return true
		}
	}
	return false
}
