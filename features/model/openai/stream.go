package openai

import (
	"context"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
)

// streamer adapts an OpenAI chat-completion SSE stream to pkg/model's cold,
// push-based Stream contract, matching the shape of the Anthropic adapter's
// streamer so both providers behave identically from the agent layer's
// point of view.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[openai.ChatCompletionChunk]

	once sync.Once
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk]) model.Stream {
	cctx, cancel := context.WithCancel(ctx)
	return &streamer{ctx: cctx, cancel: cancel, stream: stream}
}

func (s *streamer) Subscribe(onNext func(model.Chunk), onError func(error), onComplete func()) {
	go s.run(onNext, onError, onComplete)
}

func (s *streamer) Cancel() {
	s.once.Do(func() {
		s.cancel()
		_ = s.stream.Close()
	})
}

func (s *streamer) run(onNext func(model.Chunk), onError func(error), onComplete func()) {
	defer func() { _ = s.stream.Close() }()

	for s.stream.Next() {
		select {
		case <-s.ctx.Done():
			onError(s.ctx.Err())
			return
		default:
		}
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			onNext(model.Chunk{Type: model.ChunkTypeText, Delta: choice.Delta.Content})
		}
		if choice.FinishReason != "" {
			onNext(model.Chunk{Type: model.ChunkTypeStop, FinishReason: translateFinishReason(choice.FinishReason)})
		}
	}
	if err := s.stream.Err(); err != nil {
		onError(translateError(err))
		return
	}
	onComplete()
}
