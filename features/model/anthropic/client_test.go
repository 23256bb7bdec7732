package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubMessagesClient) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.lastParams = body
	return ssestream.NewStream[sdk.MessageStreamEventUnion](&noopDecoder{}, nil)
}

type noopDecoder struct{}

func (n *noopDecoder) Event() ssestream.Event { return ssestream.Event{} }
func (n *noopDecoder) Next() bool             { return false }
func (n *noopDecoder) Close() error           { return nil }
func (n *noopDecoder) Err() error             { return nil }

func testRequest() model.Request {
	return model.Request{
		Messages: []model.Message{
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}},
		},
	}
}

func TestTextToText_TextOnly(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "world"}},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	cl, err := New(stub, Options{DefaultModel: "claude-3.5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := cl.TextToText(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.Len(t, resp.Choices[0].Message.Parts, 1)
	assert.Equal(t, "world", resp.Choices[0].Message.Parts[0].(model.TextPart).Text)
	assert.Equal(t, model.FinishReasonStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "claude-3.5-sonnet", string(stub.lastParams.Model))
}

func TestTextToText_DefaultModelAndMaxTokensApplyWhenRequestOmitsThem(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{StopReason: sdk.StopReasonEndTurn}}
	cl, err := New(stub, Options{DefaultModel: "claude-3.5-sonnet", MaxTokens: 256})
	require.NoError(t, err)

	_, err = cl.TextToText(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "claude-3.5-sonnet", string(stub.lastParams.Model))
	assert.Equal(t, int64(256), stub.lastParams.MaxTokens)
}

func TestTextToText_NoMessagesIsError(t *testing.T) {
	cl, err := New(&stubMessagesClient{}, Options{DefaultModel: "claude-3.5-sonnet"})
	require.NoError(t, err)

	_, err = cl.TextToText(context.Background(), model.Request{})
	assert.Error(t, err)
}

func TestTextToText_ProviderErrorTranslatesToProviderUnavailable(t *testing.T) {
	stub := &stubMessagesClient{err: assert.AnError}
	cl, err := New(stub, Options{DefaultModel: "claude-3.5-sonnet"})
	require.NoError(t, err)

	_, err = cl.TextToText(context.Background(), testRequest())
	require.Error(t, err)
	perr, ok := model.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrorKindProviderUnavailable, perr.Kind)
	assert.Equal(t, "anthropic", perr.Provider)
}

func TestUnsupportedCapabilities(t *testing.T) {
	cl, err := New(&stubMessagesClient{}, Options{DefaultModel: "claude-3.5-sonnet"})
	require.NoError(t, err)

	_, err = cl.TextToImage(context.Background(), testRequest())
	require.Error(t, err)
	perr, ok := model.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrorKindBadRequest, perr.Kind)

	_, err = cl.ImageToText(context.Background(), testRequest())
	assert.Error(t, err)

	_, err = cl.Transcribe(context.Background(), []byte("audio"), "audio/wav")
	assert.Error(t, err)
}

func TestNew_ValidatesRequiredFields(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "m"})
	assert.Error(t, err)

	_, err = New(&stubMessagesClient{}, Options{})
	assert.Error(t, err)
}
