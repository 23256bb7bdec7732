package bedrock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
)

func encodeMessages(msgs []model.Message, nameMap map[string]string) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	var system []brtypes.SystemContentBlock

	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			for _, p := range m.Parts {
				if tp, ok := p.(model.TextPart); ok && tp.Text != "" {
					system = append(system, &brtypes.SystemContentBlockMemberText{Value: tp.Text})
				}
			}
			continue
		}

		blocks := make([]brtypes.ContentBlock, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
				}
			case model.ImagePart:
				blocks = append(blocks, &brtypes.ContentBlockMemberImage{Value: brtypes.ImageBlock{
					Format: imageFormat(v.MIMEType),
					Source: &brtypes.ImageSourceMemberBytes{Value: v.Bytes},
				}})
			case model.ToolCallPart:
				tb := brtypes.ToolUseBlock{Input: toDocument(v.Input)}
				if v.Name != "" {
					sanitized, ok := nameMap[v.Name]
					if !ok || sanitized == "" {
						return nil, nil, fmt.Errorf("bedrock: tool_use references %q which is not in the current tool configuration", v.Name)
					}
					tb.Name = aws.String(sanitized)
				}
				if v.ID != "" {
					tb.ToolUseId = aws.String(v.ID)
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: tb})
			case model.ToolResultPart:
				tr := brtypes.ToolResultBlock{
					ToolUseId: aws.String(v.ToolCallID),
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: v.Content}},
				}
				if v.IsError {
					tr.Status = brtypes.ToolResultStatusError
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: tr})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleAssistant
		if m.Role == model.RoleUser || m.Role == model.RoleTool {
			role = brtypes.ConversationRoleUser
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func imageFormat(mimeType string) brtypes.ImageFormat {
	switch mimeType {
	case "image/png":
		return brtypes.ImageFormatPng
	case "image/gif":
		return brtypes.ImageFormatGif
	case "image/webp":
		return brtypes.ImageFormatWebp
	default:
		return brtypes.ImageFormatJpeg
	}
}

func encodeTools(defs []model.ToolDefinition) (*brtypes.ToolConfiguration, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]brtypes.Tool, 0, len(defs))
	canonToProv := make(map[string]string, len(defs))
	provToCanon := make(map[string]string, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		sanitized := sanitizeToolName(def.Name)
		if prev, ok := provToCanon[sanitized]; ok && prev != def.Name {
			return nil, nil, nil, fmt.Errorf("bedrock: tool name %q sanitizes to %q which collides with %q", def.Name, sanitized, prev)
		}
		provToCanon[sanitized] = def.Name
		canonToProv[def.Name] = sanitized
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(sanitized),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(def.InputSchema)},
		}})
	}
	if len(toolList) == 0 {
		return nil, nil, nil, nil
	}
	return &brtypes.ToolConfiguration{Tools: toolList}, canonToProv, provToCanon, nil
}

// sanitizeToolName maps a canonical tool name to characters Bedrock allows
// in tool names ([a-zA-Z0-9_-]+, <=64 bytes), preserving namespace
// information by mapping "." to "_" and falling back to a stable hash
// suffix when truncation would otherwise risk a collision.
func sanitizeToolName(in string) string {
	if in == "" {
		return ""
	}
	const maxLen = 64
	const hashLen = 8

	out := make([]rune, 0, len(in))
	for _, r := range in {
		if r == '.' {
			r = '_'
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	sanitized := string(out)
	if len(sanitized) <= maxLen {
		return sanitized
	}

	sum := sha256.Sum256([]byte(in))
	suffix := hex.EncodeToString(sum[:])[:hashLen]
	prefixLen := maxLen - (1 + hashLen)
	if prefixLen < 1 {
		prefixLen = 1
	}
	return sanitized[:prefixLen] + "_" + suffix
}

func toDocument(schema map[string]any) document.Interface {
	if schema == nil {
		return document.NewLazyDocument(map[string]any{"type": "object"})
	}
	return document.NewLazyDocument(schema)
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func translateResponse(output *bedrockruntime.ConverseOutput, nameMap map[string]string) (*model.Response, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	choice := model.Choice{Message: model.Message{Role: model.RoleAssistant}}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				if v.Value != "" {
					choice.Message.Parts = append(choice.Message.Parts, model.TextPart{Text: v.Value})
				}
			case *brtypes.ContentBlockMemberToolUse:
				name := ""
				if v.Value.Name != nil {
					canonical, ok := nameMap[*v.Value.Name]
					if !ok {
						return nil, fmt.Errorf("bedrock: tool name %q not in reverse map", *v.Value.Name)
					}
					name = canonical
				}
				var id string
				if v.Value.ToolUseId != nil {
					id = *v.Value.ToolUseId
				}
				part := model.ToolCallPart{ID: id, Name: name, Input: decodeDocument(v.Value.Input)}
				choice.Message.Parts = append(choice.Message.Parts, part)
				choice.ToolCalls = append(choice.ToolCalls, part)
			}
		}
	}
	choice.FinishReason = translateStopReason(string(output.StopReason))

	resp := &model.Response{Choices: []model.Choice{choice}}
	if usage := output.Usage; usage != nil {
		resp.Usage = model.TokenUsage{
			PromptTokens:     int(aws.ToInt32(usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(usage.TotalTokens)),
		}
		resp.Trace = model.TraceInfo{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
	}
	return resp, nil
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
