package openai

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"github.com/openai/openai-go"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
)

func encodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func encodeArguments(input json.RawMessage) string {
	if len(input) == 0 {
		return "{}"
	}
	return string(input)
}

func decodeArguments(args string) json.RawMessage {
	if args == "" {
		return nil
	}
	return json.RawMessage(args)
}

// audioReader adapts a raw audio buffer into the io.Reader Transcribe
// passes as the multipart file body, so callers never need a temp file.
type audioReader struct {
	*bytes.Reader
	mimeType string
}

func newAudioReader(data []byte, mimeType string) *audioReader {
	return &audioReader{Reader: bytes.NewReader(data), mimeType: mimeType}
}

func (c *Client) buildParams(req model.Request) (openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("openai: at least one message is required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(float64(*req.Temperature))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(float64(*req.TopP))
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func encodeMessages(msgs []model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		text := textOf(m)
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case model.RoleUser:
			out = append(out, encodeUserMessage(m, text))
		case model.RoleAssistant:
			out = append(out, encodeAssistantMessage(m, text))
		case model.RoleTool:
			for _, p := range m.Parts {
				if tr, ok := p.(model.ToolResultPart); ok {
					out = append(out, openai.ToolMessage(tr.Content, tr.ToolCallID))
				}
			}
		default:
			return nil, errors.New("openai: unsupported message role")
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: no encodable messages")
	}
	return out, nil
}

func encodeUserMessage(m model.Message, text string) openai.ChatCompletionMessageParamUnion {
	for _, p := range m.Parts {
		if img, ok := p.(model.ImagePart); ok {
			parts := []openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(text),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:" + img.MIMEType + ";base64," + encodeBase64(img.Bytes),
				}),
			}
			return openai.UserMessage(parts)
		}
	}
	return openai.UserMessage(text)
}

func encodeAssistantMessage(m model.Message, text string) openai.ChatCompletionMessageParamUnion {
	msg := openai.AssistantMessage(text)
	for _, p := range m.Parts {
		if tc, ok := p.(model.ToolCallPart); ok {
			msg.OfAssistant.ToolCalls = append(msg.OfAssistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: encodeArguments(tc.Input),
				},
			})
		}
	}
	return msg
}

func textOf(m model.Message) string {
	for _, p := range m.Parts {
		if tp, ok := p.(model.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}

func encodeTools(defs []model.ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.InputSchema),
			},
		})
	}
	return out, nil
}

func translateCompletion(resp *openai.ChatCompletion) *model.Response {
	out := &model.Response{
		Usage: model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Trace: model.TraceInfo{
			Model:            resp.Model,
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}
	for _, c := range resp.Choices {
		choice := model.Choice{
			Message:      model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: c.Message.Content}}},
			FinishReason: translateFinishReason(c.FinishReason),
		}
		for _, tc := range c.Message.ToolCalls {
			part := model.ToolCallPart{ID: tc.ID, Name: tc.Function.Name, Input: decodeArguments(tc.Function.Arguments)}
			choice.Message.Parts = append(choice.Message.Parts, part)
			choice.ToolCalls = append(choice.ToolCalls, part)
		}
		out.Choices = append(out.Choices, choice)
	}
	return out
}

func translateFinishReason(reason string) model.FinishReason {
	switch reason {
	case "stop":
		return model.FinishReasonStop
	case "length":
		return model.FinishReasonLength
	case "tool_calls":
		return model.FinishReasonToolCalls
	case "content_filter":
		return model.FinishReasonContent
	default:
		return model.FinishReasonStop
	}
}

var _ io.Reader = (*audioReader)(nil)
