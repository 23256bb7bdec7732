package bedrock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
)

// streamer adapts a Bedrock ConverseStream event channel to pkg/model's
// cold, push-based Stream contract, matching the shape of the Anthropic
// and OpenAI adapters' streamers so all three providers behave identically
// from the agent layer's point of view.
type streamer struct {
	ctx         context.Context
	cancel      context.CancelFunc
	stream      *bedrockruntime.ConverseStreamEventStream
	toolNameMap map[string]string

	once sync.Once
}

func newStreamer(ctx context.Context, stream *bedrockruntime.ConverseStreamEventStream, nameMap map[string]string) model.Stream {
	cctx, cancel := context.WithCancel(ctx)
	return &streamer{ctx: cctx, cancel: cancel, stream: stream, toolNameMap: nameMap}
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

// toolUse records the id and name of one in-flight tool_use content block,
// keyed by its content index within the message; its input JSON deltas are
// emitted chunk by chunk, not accumulated here.
type toolUse struct {
	id   string
	name string
}

func (s *streamer) run(onNext func(model.Chunk), onError func(error), onComplete func()) {
	defer func() { _ = s.stream.Close() }()

	toolBlocks := make(map[int32]*toolUse)
	events := s.stream.Events()

	for {
		select {
		case <-s.ctx.Done():
			onError(s.ctx.Err())
			return
		case event, ok := <-events:
			if !ok {
				if err := s.stream.Err(); err != nil {
					onError(translateError(err))
					return
				}
				onComplete()
				return
			}
			chunk, done, err := s.translateEvent(event, toolBlocks)
			if err != nil {
				onError(err)
				return
			}
			if done {
				onNext(chunk)
				onComplete()
				return
			}
			if chunk.Type != "" {
				onNext(chunk)
			}
		}
	}
}

func (s *streamer) translateEvent(event any, toolBlocks map[int32]*toolUse) (model.Chunk, bool, error) {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
			if start.Value.ToolUseId == nil || start.Value.Name == nil {
				return model.Chunk{}, false, fmt.Errorf("bedrock stream: tool_use block missing id or name")
			}
			canonical, ok := s.toolNameMap[*start.Value.Name]
			if !ok {
				return model.Chunk{}, false, fmt.Errorf("bedrock stream: tool name %q not in reverse map", *start.Value.Name)
			}
			toolBlocks[ev.Value.ContentBlockIndex] = &toolUse{id: *start.Value.ToolUseId, name: canonical}
		}
		return model.Chunk{}, false, nil
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		switch delta := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			if delta.Value == "" {
				return model.Chunk{}, false, nil
			}
			return model.Chunk{Type: model.ChunkTypeText, Delta: delta.Value}, false, nil
		case *brtypes.ContentBlockDeltaMemberToolUse:
			tb, ok := toolBlocks[ev.Value.ContentBlockIndex]
			if !ok || delta.Value.Input == nil {
				return model.Chunk{}, false, nil
			}
			return model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCallPart{ID: tb.id, Name: tb.name, Input: []byte(*delta.Value.Input)}}, false, nil
		}
		return model.Chunk{}, false, nil
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		return model.Chunk{Type: model.ChunkTypeStop, FinishReason: translateStopReason(string(ev.Value.StopReason))}, true, nil
	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage != nil {
			usage := model.TokenUsage{
				PromptTokens:     int(aws.ToInt32(ev.Value.Usage.InputTokens)),
				CompletionTokens: int(aws.ToInt32(ev.Value.Usage.OutputTokens)),
				TotalTokens:      int(aws.ToInt32(ev.Value.Usage.TotalTokens)),
			}
			return model.Chunk{Type: model.ChunkTypeUsage, Usage: &usage}, false, nil
		}
		return model.Chunk{}, false, nil
	default:
		return model.Chunk{}, false, nil
	}
}
