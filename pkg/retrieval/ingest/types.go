// Package ingest implements the ingestion half of the Retrieval Pipeline:
// DocumentLoader -> TextSplitter -> Embedder -> VectorStore, run over a
// bounded concurrent pipeline with per-document retry.
package ingest

import "context"

type (
	// Document is one unit of retrievable content: an id, its embedding
	// vector (nil until embedded), the text payload, and arbitrary metadata
	// carried through from its originating LoadedDocument (plus, for
	// chunks produced during splitting, a "chunkIndex" entry).
	Document struct {
		ID          string
		Vector      []float32
		PageContent string
		Metadata    map[string]any
	}

	// LoadedDocument wraps raw bytes read from a source alongside metadata
	// describing its origin (path, URL, content type, and any
	// loader-specific tags).
	LoadedDocument struct {
		ID       string
		Bytes    []byte
		Metadata map[string]any
	}

	// DocumentResult is the outcome of ingesting one LoadedDocument: the
	// number of chunks successfully stored, and any errors encountered.
	// A document's chunks are embedded in one call and stored in one call,
	// so a result with Errors has ChunksStored zero.
	DocumentResult struct {
		DocumentID   string
		ChunksStored int
		Errors       []error
	}

	// DocumentLoader produces LoadedDocuments from some source.
	DocumentLoader interface {
		Load(ctx context.Context) ([]LoadedDocument, error)
	}

	// TextSplitter divides one LoadedDocument into Documents preserving
	// the parent's metadata plus a "chunkIndex" entry.
	TextSplitter interface {
		Split(doc LoadedDocument) ([]Document, error)
	}

	// Embedder computes embedding vectors for chunk text. Implementations
	// batch internally when that is cheaper for the backing provider.
	Embedder interface {
		Embed(ctx context.Context, texts []string) ([][]float32, error)
	}

	// VectorStore persists embedded Documents under indexName and serves
	// similarity search over them.
	VectorStore interface {
		Store(ctx context.Context, indexName string, docs []Document) error
		Search(ctx context.Context, indexName string, query []float32, topK int) ([]ScoredDocument, error)
	}

	// ScoredDocument pairs a Document with its similarity score against a
	// query vector.
	ScoredDocument struct {
		Document Document
		Score    float32
	}

	// ProgressListener receives ingestion progress callbacks. A nil method
	// value is never called; use NoopListener{} when no callbacks are
	// needed.
	ProgressListener interface {
		OnDocumentLoaded(doc LoadedDocument)
		OnDocumentProcessed(result DocumentResult)
		OnChunkStored(documentID string, chunkIndex int)
	}

	// NoopListener discards every callback.
	NoopListener struct{}
)

func (NoopListener) OnDocumentLoaded(LoadedDocument)    {}
func (NoopListener) OnDocumentProcessed(DocumentResult) {}
func (NoopListener) OnChunkStored(string, int)          {}
