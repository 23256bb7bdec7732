package ingest

import (
	"context"
	"fmt"
	"math"
	"strings"
)

type (
	// RecursiveCharacterSplitter divides text into overlapping windows of
	// at most ChunkSize runes, stepping back by ChunkOverlap runes between
	// windows, preferring to break on a separator (paragraph, then
	// sentence, then word) nearest the window boundary.
	RecursiveCharacterSplitter struct {
		ChunkSize    int
		ChunkOverlap int
	}

	// SemanticSplitter groups sentences by embedding similarity: it walks
	// sentences accumulating a running chunk, and starts a new chunk when
	// appending the next sentence would either exceed MaxChunkSize or drop
	// cosine similarity (against a running pairwise average of the chunk's
	// sentence embeddings) below SimilarityThreshold, as long as the chunk
	// has already reached MinChunkSize. TargetChunkSize only sets the
	// default MaxChunkSize (twice the target); a sentence longer than
	// MaxChunkSize is kept whole as its own chunk, not split further.
	SemanticSplitter struct {
		Embedder           Embedder
		TargetChunkSize    int
		MaxChunkSize       int
		MinChunkSize       int
		SimilarityThreshold float32
	}
)

// Split implements TextSplitter.
func (s RecursiveCharacterSplitter) Split(doc LoadedDocument) ([]Document, error) {
	size := s.ChunkSize
	if size <= 0 {
		size = 1000
	}
	overlap := s.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	text := string(doc.Bytes)
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	var chunks []Document
	start := 0
	idx := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		end = recursiveBreakpoint(runes, start, end)
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, Document{
				PageContent: chunk,
				Metadata:    chunkMetadata(doc.Metadata, idx),
			})
			idx++
		}
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// recursiveBreakpoint nudges end backward to the nearest paragraph break,
// then sentence break, then word break within the window, falling back to
// the raw window boundary when none is found.
func recursiveBreakpoint(runes []rune, start, end int) int {
	if end >= len(runes) {
		return end
	}
	for _, sep := range []string{"\n\n", ". ", " "} {
		window := string(runes[start:end])
		if i := strings.LastIndex(window, sep); i > 0 {
			return start + i + len(sep)
		}
	}
	return end
}

func chunkMetadata(parent map[string]any, chunkIndex int) map[string]any {
	out := make(map[string]any, len(parent)+1)
	for k, v := range parent {
		out[k] = v
	}
	out["chunkIndex"] = chunkIndex
	return out
}

// Split implements TextSplitter.
func (s SemanticSplitter) Split(doc LoadedDocument) ([]Document, error) {
	if s.Embedder == nil {
		return nil, fmt.Errorf("ingest: SemanticSplitter requires an Embedder")
	}
	target := s.TargetChunkSize
	if target <= 0 {
		target = 500
	}
	max := s.MaxChunkSize
	if max <= 0 {
		max = target * 2
	}
	min := s.MinChunkSize
	threshold := s.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.5
	}

	sentences := splitSentences(string(doc.Bytes), target)
	if len(sentences) == 0 {
		return nil, nil
	}

	ctx := context.Background()
	vectors, err := s.Embedder.Embed(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("ingest: embed sentences for semantic split: %w", err)
	}

	var chunks []Document
	idx := 0
	var current strings.Builder
	var currentVec []float32
	flush := func() {
		text := strings.TrimSpace(current.String())
		if text == "" {
			return
		}
		chunks = append(chunks, Document{
			PageContent: text,
			Metadata:    chunkMetadata(doc.Metadata, idx),
		})
		idx++
		current.Reset()
		currentVec = nil
	}

	for i, sentence := range sentences {
		if current.Len() == 0 {
			current.WriteString(sentence)
			currentVec = vectors[i]
			continue
		}
		wouldExceed := current.Len()+len(sentence) > max
		tooDissimilar := current.Len() >= min && cosineSimilarity(currentVec, vectors[i]) < threshold
		if wouldExceed || tooDissimilar {
			flush()
			current.WriteString(sentence)
			currentVec = vectors[i]
			continue
		}
		current.WriteString(" ")
		current.WriteString(sentence)
		currentVec = averageVectors(currentVec, vectors[i])
	}
	flush()
	return chunks, nil
}

func splitSentences(text string, targetChunkSize int) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '\n' })
	var sentences []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	_ = targetChunkSize
	return sentences
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

func averageVectors(a, b []float32) []float32 {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = (a[i] + b[i]) / 2
	}
	return out
}

