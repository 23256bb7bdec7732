// Package openai implements pkg/model.Client over the OpenAI Chat
// Completions API via github.com/openai/openai-go, an external
// collaborator per spec.md §1 — a thin, swappable adapter proving
// pkg/model's contract is satisfiable, mirroring the teacher's
// features/model/openai split from its own model package.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
)

// ChatClient captures the subset of the SDK used by the adapter, so tests
// can substitute a fake in place of the real openai.ChatCompletionService.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// ImagesClient captures the image-generation subset used for TextToImage.
type ImagesClient interface {
	New(ctx context.Context, body openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

// TranscriptionsClient captures the audio-transcription subset used for
// Transcribe.
type TranscriptionsClient interface {
	New(ctx context.Context, body openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.AudioTranscriptionNewResponse, error)
}

// Options configures a new Client.
type Options struct {
	DefaultModel string
	ImageModel   string
}

// Client implements model.Client over OpenAI's Chat Completions, Images,
// and Audio Transcriptions APIs.
type Client struct {
	chat         ChatClient
	images       ImagesClient
	transcripts  TranscriptionsClient
	defaultModel string
	imageModel   string
}

// New builds a Client from chat/images/transcripts and opts. images and
// transcripts may be nil if TextToImage/Transcribe are never called.
func New(chat ChatClient, images ImagesClient, transcripts TranscriptionsClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat completions client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, images: images, transcripts: transcripts, defaultModel: opts.DefaultModel, imageModel: opts.ImageModel}, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(c.Chat.Completions, c.Images, c.Audio.Transcriptions, Options{DefaultModel: defaultModel})
}

// TextToText performs a non-streaming chat completion.
func (c *Client) TextToText(ctx context.Context, req model.Request) (*model.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateCompletion(resp), nil
}

// TextToTextStreaming performs a streaming chat completion.
func (c *Client) TextToTextStreaming(ctx context.Context, req model.Request) (model.Stream, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := c.chat.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return newStreamer(ctx, stream), nil
}

// TextToImage generates image content via DALL-E, returning the image URL
// as a TextPart in the response's single choice (pkg/model has no
// dedicated image-output Part; callers fetch the URL themselves).
func (c *Client) TextToImage(ctx context.Context, req model.Request) (*model.Response, error) {
	if c.images == nil {
		return nil, &model.ProviderError{Provider: "openai", Kind: model.ErrorKindBadRequest, Message: "openai: image generation client not configured"}
	}
	prompt := firstUserText(req.Messages)
	if prompt == "" {
		return nil, errors.New("openai: a text prompt is required for image generation")
	}
	modelID := c.imageModel
	if modelID == "" {
		modelID = "dall-e-3"
	}
	resp, err := c.images.New(ctx, openai.ImageGenerateParams{Model: openai.ImageModel(modelID), Prompt: prompt, N: openai.Int(1)})
	if err != nil {
		return nil, translateError(err)
	}
	var urls []string
	for _, d := range resp.Data {
		urls = append(urls, d.URL)
	}
	return &model.Response{Choices: []model.Choice{{
		Message:      model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: strings.Join(urls, "\n")}}},
		FinishReason: model.FinishReasonStop,
	}}}, nil
}

// ImageToText describes image content supplied as an ImagePart/ImageURLPart
// within the request's messages, via a normal chat completion call (GPT-4o
// class models accept image content blocks directly).
func (c *Client) ImageToText(ctx context.Context, req model.Request) (*model.Response, error) {
	return c.TextToText(ctx, req)
}

// Transcribe converts audio bytes into text via the Whisper API.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if c.transcripts == nil {
		return "", &model.ProviderError{Provider: "openai", Kind: model.ErrorKindBadRequest, Message: "openai: transcription client not configured"}
	}
	resp, err := c.transcripts.New(ctx, openai.AudioTranscriptionNewParams{
		Model: shared.AudioModelWhisper1,
		File:  newAudioReader(audio, mimeType),
	})
	if err != nil {
		return "", translateError(err)
	}
	return resp.Text, nil
}

func firstUserText(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role != model.RoleUser {
			continue
		}
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok {
				return tp.Text
			}
		}
	}
	return ""
}

func translateError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429:
			return &model.ProviderError{Provider: "openai", Kind: model.ErrorKindRateLimited, Cause: err}
		case 401, 403:
			return &model.ProviderError{Provider: "openai", Kind: model.ErrorKindProviderAuth, Cause: err}
		case 400, 422:
			return &model.ProviderError{Provider: "openai", Kind: model.ErrorKindBadRequest, Cause: err}
		}
	}
	return &model.ProviderError{Provider: "openai", Kind: model.ErrorKindProviderUnavailable, Cause: err}
}
