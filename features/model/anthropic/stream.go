package anthropic

import (
	"context"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
)

// streamer adapts an Anthropic Messages SSE stream to pkg/model's cold,
// push-based Stream contract (subscribe/cancel), per the design notes'
// decision to keep streaming independent of any specific provider SDK or
// stream library.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	once sync.Once
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) model.Stream {
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
		event := s.stream.Current()
		if chunk, ok := translateEvent(event); ok {
			onNext(chunk)
		}
	}
	if err := s.stream.Err(); err != nil {
		onError(translateError(err))
		return
	}
	onComplete()
}

func translateEvent(event sdk.MessageStreamEventUnion) (model.Chunk, bool) {
	switch e := event.AsAny().(type) {
	case sdk.ContentBlockDeltaEvent:
		switch d := e.Delta.AsAny().(type) {
		case sdk.TextDelta:
			return model.Chunk{Type: model.ChunkTypeText, Delta: d.Text}, true
		}
	case sdk.MessageDeltaEvent:
		if string(e.Delta.StopReason) != "" {
			return model.Chunk{Type: model.ChunkTypeStop, FinishReason: translateStopReason(string(e.Delta.StopReason))}, true
		}
	}
	return model.Chunk{}, false
}
