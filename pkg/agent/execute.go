package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/prompt"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/tracing"
)

// ExecuteText performs a single text-in/text-out model call and returns the
// first choice's text content.
func (a *Agent) ExecuteText(ctx context.Context, req model.Request, rc tracing.RequestContext) (*AgentResponse[string], error) {
	if rc.RequestType == "" {
		rc.RequestType = tracing.RequestTypeTextToText
	}
	start := time.Now()
	resp, err := a.client.TextToText(ctx, req)
	if resp != nil {
		resp.Trace.ExecutionTimeMS = time.Since(start).Milliseconds()
	}
	if err != nil {
		a.trace(ctx, rc, req, resp, err.Error())
		return nil, err
	}
	a.trace(ctx, rc, req, resp, "")
	var text string
	if len(resp.Choices) > 0 {
		text = textOf(resp.Choices[0].Message)
	}
	return &AgentResponse[string]{Result: text, Usage: resp.Usage}, nil
}

// ExecuteStructured performs a model call constrained to the JSON Schema
// derived from T (via the Agent's schema.Registry) and decodes the response
// into a T. A response that fails schema validation or JSON decoding
// produces a *StructuredParseError.
func ExecuteStructured[T any](ctx context.Context, a *Agent, req model.Request, rc tracing.RequestContext) (*AgentResponse[T], error) {
	var zero T
	sch, err := a.schemas.GetSchema(zero)
	if err != nil {
		return nil, &StructuredParseError{Cause: err}
	}
	req.ResponseFormat = &model.ResponseFormat{
		Kind:   model.ResponseFormatJSONSchema,
		Schema: sch.ToJSONSchema(),
		Name:   sch.SchemaID,
	}
	if rc.RequestType == "" {
		rc.RequestType = tracing.RequestTypeTextToText
	}

	start := time.Now()
	resp, err := a.client.TextToText(ctx, req)
	if resp != nil {
		resp.Trace.ExecutionTimeMS = time.Since(start).Milliseconds()
	}
	if err != nil {
		a.trace(ctx, rc, req, resp, err.Error())
		return nil, err
	}
	if len(resp.Choices) == 0 {
		a.trace(ctx, rc, req, resp, "empty response")
		return nil, &StructuredParseError{SchemaID: sch.SchemaID, Cause: errEmptyResponse}
	}
	raw := []byte(textOf(resp.Choices[0].Message))
	if err := sch.ValidateJSON(raw); err != nil {
		a.trace(ctx, rc, req, resp, err.Error())
		return nil, &StructuredParseError{SchemaID: sch.SchemaID, Cause: err}
	}
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		a.trace(ctx, rc, req, resp, err.Error())
		return nil, &StructuredParseError{SchemaID: sch.SchemaID, Cause: err}
	}
	a.trace(ctx, rc, req, resp, "")
	return &AgentResponse[T]{Result: result, Usage: resp.Usage}, nil
}

// ExecuteWithPrompt renders the current (method, language) prompt with vars
// and issues it as a text-to-text call, recording the prompt's template and
// id on the trace record per §3's Model Trace Record fields.
func (a *Agent) ExecuteWithPrompt(ctx context.Context, method, language string, vars map[string]string, req model.Request) (*AgentResponse[string], error) {
	p, err := a.prompts.Current(ctx, method, language)
	if err != nil {
		if err == prompt.ErrNotFound {
			return nil, &prompt.MissingError{Method: method, Language: language}
		}
		return nil, err
	}
	text := a.prompts.Render(ctx, p, vars)
	req.Messages = append(req.Messages, userMessage(text))
	rc := tracing.RequestContext{
		ContextID:      a.id,
		ContextType:    "agent",
		RequestType:    tracing.RequestTypeTextToText,
		PromptTemplate: p.Message,
		PromptID:       p.ID,
		Variables:      vars,
	}
	return a.ExecuteText(ctx, req, rc)
}

var errEmptyResponse = &emptyResponseError{}

type emptyResponseError struct{}

func (*emptyResponseError) Error() string { return "agent: model returned no choices" }
