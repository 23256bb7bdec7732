package rag_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/retrieval/ingest"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/retrieval/rag"
)

type fakeStore struct {
	docs []ingest.ScoredDocument
}

func (s *fakeStore) Store(context.Context, string, []ingest.Document) error { return nil }
func (s *fakeStore) Search(_ context.Context, _ string, _ []float32, topK int) ([]ingest.ScoredDocument, error) {
	if topK < len(s.docs) {
		return s.docs[:topK], nil
	}
	return s.docs, nil
}

type fakeEmbedder struct{ calls int }

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func docs(ids ...string) []ingest.ScoredDocument {
	out := make([]ingest.ScoredDocument, len(ids))
	for i, id := range ids {
		out[i] = ingest.ScoredDocument{
			Document: ingest.Document{ID: id, PageContent: "content-" + id},
			Score:    1.0 - float32(i)*0.1,
		}
	}
	return out
}

func TestRetrieveTopKZeroSkipsStore(t *testing.T) {
	store := &fakeStore{docs: docs("a", "b")}
	r := &rag.Retriever{Store: store}
	results, err := r.Retrieve(context.Background(), rag.Query{Text: "q", TopK: 0})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveFiltersByMinScore(t *testing.T) {
	store := &fakeStore{docs: docs("a", "b", "c", "d", "e")}
	r := &rag.Retriever{Store: store}
	results, err := r.Retrieve(context.Background(), rag.Query{Text: "q", TopK: 10, MinScore: 0.85})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Equal(t, "b", results[1].Document.ID)
}

func TestRetrieveAppliesMetadataFilter(t *testing.T) {
	scored := docs("a", "b")
	scored[0].Document.Metadata = map[string]any{"lang": "en"}
	scored[1].Document.Metadata = map[string]any{"lang": "fr"}
	store := &fakeStore{docs: scored}
	r := &rag.Retriever{Store: store}
	results, err := r.Retrieve(context.Background(), rag.Query{Text: "q", TopK: 10, Filter: map[string]any{"lang": "fr"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Document.ID)
}

func TestRetrieveEmbedsQueryWhenEmbedderSet(t *testing.T) {
	store := &fakeStore{docs: docs("a")}
	embedder := &fakeEmbedder{}
	r := &rag.Retriever{Store: store, Embedder: embedder}
	_, err := r.Retrieve(context.Background(), rag.Query{Text: "q", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	store := &fakeStore{docs: docs("a", "b", "c")}
	r := &rag.Retriever{Store: store}
	results, err := r.Retrieve(context.Background(), rag.Query{Text: "q", TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Document.ID)
}

type fixedReranker struct {
	order []int // candidate indices, in desired output order
}

func (f *fixedReranker) Rerank(_ context.Context, _ string, candidates []rag.Result) ([]rag.Result, error) {
	out := make([]rag.Result, len(f.order))
	for i, idx := range f.order {
		c := candidates[idx]
		c.RerankScore = float32(len(f.order) - i)
		c.Reranked = true
		out[i] = c
	}
	return out, nil
}

func TestRetrieveRerankerReordersAndRecordsScores(t *testing.T) {
	store := &fakeStore{docs: docs("a", "b")}
	r := &rag.Retriever{Store: store, Reranker: &fixedReranker{order: []int{1, 0}}}
	results, err := r.Retrieve(context.Background(), rag.Query{Text: "q", TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Document.ID)
	assert.True(t, results[0].OriginalScore < results[0].RerankScore)
	assert.Equal(t, "a", results[1].Document.ID)
}
