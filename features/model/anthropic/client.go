// Package anthropic implements pkg/model.Client over the Anthropic Claude
// Messages API, an external collaborator per spec.md §1's "concrete
// model-provider HTTP clients... are out of scope" — this adapter exists
// only to prove pkg/model's contract is satisfiable, mirroring the
// teacher's features/model/anthropic split from its own model package.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
)

// MessagesClient captures the subset of the Anthropic SDK client the
// adapter depends on, so tests can substitute a fake in place of
// *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures optional Anthropic adapter behavior.
type Options struct {
	// DefaultModel is used when a Request leaves Model empty.
	DefaultModel string
	// MaxTokens is the default completion cap when a Request leaves
	// MaxTokens unset.
	MaxTokens int
}

// Client implements model.Client over Anthropic Claude Messages. It does
// not implement TextToImage, ImageToText, or Transcribe: Anthropic's
// Messages API has no corresponding capability, so those return a
// *model.ProviderError of kind ErrorKindBadRequest.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
}

// New builds a Client from msg and opts.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP transport,
// authenticated with apiKey.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, Options{DefaultModel: defaultModel})
}

// TextToText performs a non-streaming Messages.New call.
func (c *Client) TextToText(ctx context.Context, req model.Request) (*model.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateMessage(msg), nil
}

// TextToTextStreaming performs a streaming Messages.NewStreaming call.
func (c *Client) TextToTextStreaming(ctx context.Context, req model.Request) (model.Stream, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return newStreamer(ctx, stream), nil
}

// TextToImage is unsupported by the Anthropic Messages API.
func (c *Client) TextToImage(context.Context, model.Request) (*model.Response, error) {
	return nil, unsupported("textToImage")
}

// ImageToText is unsupported by the Anthropic Messages API (image content
// must be supplied as an image Part within a TextToText request instead).
func (c *Client) ImageToText(context.Context, model.Request) (*model.Response, error) {
	return nil, unsupported("imageToText")
}

// Transcribe is unsupported: Anthropic has no audio transcription API.
func (c *Client) Transcribe(context.Context, []byte, string) (string, error) {
	return "", unsupported("transcribe")
}

func unsupported(op string) error {
	return &model.ProviderError{Provider: "anthropic", Kind: model.ErrorKindBadRequest, Message: fmt.Sprintf("anthropic: %s is not supported by the Messages API", op)}
}

func (c *Client) buildParams(req model.Request) (sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: at least one message is required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	conversation, system, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(float64(*req.Temperature))
	}
	if req.TopP != nil {
		params.TopP = sdk.Float(float64(*req.TopP))
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func translateError(err error) error {
	if isRateLimited(err) {
		return &model.ProviderError{Provider: "anthropic", Kind: model.ErrorKindRateLimited, Cause: err}
	}
	if isAuthError(err) {
		return &model.ProviderError{Provider: "anthropic", Kind: model.ErrorKindProviderAuth, Cause: err}
	}
	return &model.ProviderError{Provider: "anthropic", Kind: model.ErrorKindProviderUnavailable, Cause: err}
}

func isRateLimited(err error) bool {
	var apierr *sdk.Error
	return errors.As(err, &apierr) && apierr.StatusCode == 429
}

func isAuthError(err error) bool {
	var apierr *sdk.Error
	return errors.As(err, &apierr) && (apierr.StatusCode == 401 || apierr.StatusCode == 403)
}
