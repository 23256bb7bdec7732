// Package inmem provides an in-memory ingest.VectorStore, suitable for
// single-instance deployments and tests. Search ranks by cosine similarity,
// the same metric pkg/retrieval/ingest's SemanticSplitter uses for
// grouping.
package inmem

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/retrieval/ingest"
)

// VectorStore is an in-memory ingest.VectorStore.
type VectorStore struct {
	mu      sync.RWMutex
	indexes map[string][]ingest.Document
}

// New constructs an empty VectorStore.
func New() *VectorStore {
	return &VectorStore{indexes: make(map[string][]ingest.Document)}
}

// Store implements ingest.VectorStore.
func (s *VectorStore) Store(_ context.Context, indexName string, docs []ingest.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[indexName] = append(s.indexes[indexName], docs...)
	return nil
}

// Search implements ingest.VectorStore, returning the topK nearest
// documents by cosine similarity to query.
func (s *VectorStore) Search(_ context.Context, indexName string, query []float32, topK int) ([]ingest.ScoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.indexes[indexName]
	scored := make([]ingest.ScoredDocument, 0, len(docs))
	for _, d := range docs {
		scored = append(scored, ingest.ScoredDocument{Document: d, Score: cosineSimilarity(query, d.Vector)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
