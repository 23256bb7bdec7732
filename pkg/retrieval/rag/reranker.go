package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/agent"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/model"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/tracing"
)

// rerankVerdict is the structured response a ModelBasedReranker requests
// from the model: one score per candidate, addressed by the candidate's
// position in the prompt (not its Document.ID, which may collide or be
// absent for sparse-index documents).
type rerankVerdict struct {
	Rankings []rerankEntry `json:"rankings" schema:"name=rankings"`
}

type rerankEntry struct {
	Index int     `json:"index" schema:"name=index"`
	Score float32 `json:"score" schema:"name=score"`
}

// ModelBasedReranker asks an LLM, under a JSON-schema response format, to
// score retrieval candidates against the query; candidates are reordered by
// the model's scores, preserving each Document and recording both
// OriginalScore and RerankScore (§4.5).
type ModelBasedReranker struct {
	Agent       *agent.Agent
	Model       string
	Temperature *float32
	// PromptID identifies the reranker's instructions in tracing context;
	// the prompt text itself is built in-line from candidates since its
	// shape depends on the candidate set, not a registry template.
	PromptID string
}

// Rerank implements Reranker.
func (r *ModelBasedReranker) Rerank(ctx context.Context, query string, candidates []Result) ([]Result, error) {
	prompt := buildRerankPrompt(query, candidates)
	req := model.Request{
		Model:       r.Model,
		Temperature: r.Temperature,
		Messages: []model.Message{
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: prompt}}},
		},
	}
	rc := tracing.RequestContext{
		ContextID:   r.Agent.ID(),
		ContextType: "reranker",
		RequestType: tracing.RequestTypeTextToText,
		PromptID:    r.PromptID,
	}
	resp, err := agent.ExecuteStructured[rerankVerdict](ctx, r.Agent, req, rc)
	if err != nil {
		return nil, err
	}

	scores := make(map[int]float32, len(resp.Result.Rankings))
	for _, entry := range resp.Result.Rankings {
		scores[entry.Index] = entry.Score
	}

	out := make([]Result, len(candidates))
	copy(out, candidates)
	for i := range out {
		if s, ok := scores[i]; ok {
			out[i].RerankScore = s
			out[i].Reranked = true
		} else {
			out[i].RerankScore = out[i].OriginalScore
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out, nil
}

func buildRerankPrompt(query string, candidates []Result) string {
	var b strings.Builder
	b.WriteString("Rank the following candidate passages by relevance to the query.\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n\n", i, c.Document.PageContent)
	}
	b.WriteString("Return a \"rankings\" array with one {index, score} entry per candidate, score in [0,1], higher is more relevant.")
	return b.String()
}
