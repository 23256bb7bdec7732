package anthropic

import (
	"encoding/base64"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
)

func encodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func encodeMessages(msgs []model.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	var system []sdk.TextBlockParam

	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			for _, p := range m.Parts {
				if tp, ok := p.(model.TextPart); ok && tp.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: tp.Text})
				}
			}
			continue
		}

		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(v.Text))
				}
			case model.ToolCallPart:
				blocks = append(blocks, sdk.NewToolUseBlock(v.ID, v.Input, v.Name))
			case model.ToolResultPart:
				blocks = append(blocks, sdk.NewToolResultBlock(v.ToolCallID, v.Content, v.IsError))
			case model.ImagePart:
				blocks = append(blocks, sdk.NewImageBlockBase64(v.MIMEType, encodeBase64(v.Bytes)))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case model.RoleUser, model.RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case model.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(defs []model.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: def.InputSchema}, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func translateMessage(msg *sdk.Message) *model.Response {
	choice := model.Choice{Message: model.Message{Role: model.RoleAssistant}}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			choice.Message.Parts = append(choice.Message.Parts, model.TextPart{Text: b.Text})
		case sdk.ToolUseBlock:
			choice.Message.Parts = append(choice.Message.Parts, model.ToolCallPart{ID: b.ID, Name: b.Name, Input: b.Input})
			choice.ToolCalls = append(choice.ToolCalls, model.ToolCallPart{ID: b.ID, Name: b.Name, Input: b.Input})
		case sdk.ThinkingBlock:
			choice.Message.Parts = append(choice.Message.Parts, model.ThinkingPart{Text: b.Thinking, Signature: b.Signature})
		}
	}
	choice.FinishReason = translateStopReason(string(msg.StopReason))
	return &model.Response{
		Choices: []model.Choice{choice},
		Usage: model.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Trace: model.TraceInfo{
			Model:            string(msg.Model),
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func translateStopReason(reason string) model.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return model.FinishReasonStop
	case "max_tokens":
		return model.FinishReasonLength
	case "tool_use":
		return model.FinishReasonToolCalls
	default:
		return model.FinishReasonStop
	}
}
