// Package rag implements the retrieval half of the Retrieval Pipeline:
// embed query -> search -> filter -> rerank -> truncate to topK, sharing the
// ingest package's Document/VectorStore/Embedder types (§4.5).
package rag

import (
	"context"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/retrieval/ingest"
)

type (
	// Query describes one retrieval request.
	Query struct {
		Text      string
		IndexName string
		TopK      int
		MinScore  float32
		// Filter matches candidate Documents on exact equality of the
		// named metadata keys; a candidate missing a key or holding a
		// different value is dropped.
		Filter map[string]any
		// Prefix, when non-empty, is prepended to Text before embedding
		// (some embedding backends expect a task-specific prefix such as
		// "search_query: ").
		Prefix string
	}

	// Result pairs a retrieved Document with both the vector store's raw
	// similarity score and, when a Reranker ran, its model-assigned score.
	Result struct {
		Document      ingest.Document
		OriginalScore float32
		RerankScore   float32
		Reranked      bool
	}

	// Reranker re-sorts a candidate list, preserving the Document payload
	// and recording each candidate's model-assigned score.
	Reranker interface {
		Rerank(ctx context.Context, query string, candidates []Result) ([]Result, error)
	}

	// Retriever runs the embed -> search -> filter -> rerank -> truncate
	// pipeline described in §4.5.
	Retriever struct {
		// Embedder computes the query vector. Nil is valid for backends
		// that search on raw text rather than embeddings (e.g. a
		// keyword/BM25 VectorStore); in that case Search is invoked with a
		// nil query vector.
		Embedder ingest.Embedder
		Store    ingest.VectorStore
		Reranker Reranker // optional
	}
)

// Retrieve runs q against r's VectorStore, optionally embedding the query
// text first, dropping candidates below q.MinScore or failing q.Filter,
// optionally reranking the survivors, and truncating to q.TopK.
//
// topK=0 returns an empty list without invoking the VectorStore, per §8's
// boundary case.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	if q.TopK == 0 {
		return nil, nil
	}

	var vector []float32
	if r.Embedder != nil {
		text := q.Prefix + q.Text
		vectors, err := r.Embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) > 0 {
			vector = vectors[0]
		}
	}

	// Search with a generous candidate pool so filtering and reranking have
	// material to work with before the final truncation to q.TopK.
	searchK := q.TopK
	if r.Reranker != nil && searchK < rerankPoolFloor {
		searchK = rerankPoolFloor
	}

	scored, err := r.Store.Search(ctx, q.IndexName, vector, searchK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(scored))
	for _, sd := range scored {
		if sd.Score < q.MinScore {
			continue
		}
		if !matchesFilter(sd.Document.Metadata, q.Filter) {
			continue
		}
		results = append(results, Result{Document: sd.Document, OriginalScore: sd.Score})
	}

	if r.Reranker != nil && len(results) > 0 {
		reranked, err := r.Reranker.Rerank(ctx, q.Text, results)
		if err != nil {
			return nil, err
		}
		results = reranked
	}

	if len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return results, nil
}

// rerankPoolFloor bounds how many candidates are pulled from the vector
// store before reranking when the caller's topK is small, so the reranker
// has more than topK items to choose an order from.
const rerankPoolFloor = 20

func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}
