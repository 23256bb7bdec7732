package ingest

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type (
	// RetryPolicy bounds per-document retry: up to MaxAttempts total
	// invocations, waiting Delay between each.
	RetryPolicy struct {
		MaxAttempts int
		Delay       time.Duration
	}

	// PipelineConfig configures a new Pipeline.
	PipelineConfig struct {
		Loader      DocumentLoader
		Splitter    TextSplitter
		Embedder    Embedder
		VectorStore VectorStore
		IndexName   string

		// Concurrency bounds how many documents are processed at once.
		// Zero defaults to 4.
		Concurrency int
		Retry       RetryPolicy
		Listener    ProgressListener
	}

	// Pipeline runs the Loader -> Splitter -> Embedder -> VectorStore
	// ingestion stages over a bounded concurrent set of documents, per
	// §4.7.1's "virtual-thread-friendly" bounded concurrency shape shared
	// with the Workflow Engine's worker pool.
	Pipeline struct {
		cfg PipelineConfig
	}
)

// NewPipeline constructs a Pipeline from cfg, applying defaults.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Listener == nil {
		cfg.Listener = NoopListener{}
	}
	return &Pipeline{cfg: cfg}
}

// Run loads every document from the configured Loader and ingests each
// concurrently (bounded by Concurrency), returning one DocumentResult per
// loaded document in load order. A document's repeated failure after
// Retry.MaxAttempts attempts is surfaced as an error result without
// stopping the ingestion of its siblings.
func (p *Pipeline) Run(ctx context.Context) ([]DocumentResult, error) {
	docs, err := p.cfg.Loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]DocumentResult, len(docs))
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, doc := range docs {
		p.cfg.Listener.OnDocumentLoaded(doc)
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, doc LoadedDocument) {
			defer wg.Done()
			defer func() { <-sem }()
			result := p.ingestWithRetry(ctx, doc)
			results[i] = result
			p.cfg.Listener.OnDocumentProcessed(result)
		}(i, doc)
	}
	wg.Wait()
	return results, nil
}

func (p *Pipeline) ingestWithRetry(ctx context.Context, doc LoadedDocument) DocumentResult {
	var lastErrs []error
	for attempt := 1; attempt <= p.cfg.Retry.MaxAttempts; attempt++ {
		result, err := p.ingestOne(ctx, doc)
		if err == nil {
			return result
		}
		lastErrs = append(lastErrs, err)
		if attempt < p.cfg.Retry.MaxAttempts && p.cfg.Retry.Delay > 0 {
			select {
			case <-time.After(p.cfg.Retry.Delay):
			case <-ctx.Done():
				lastErrs = append(lastErrs, ctx.Err())
				return DocumentResult{DocumentID: doc.ID, Errors: lastErrs}
			}
		}
	}
	return DocumentResult{DocumentID: doc.ID, Errors: lastErrs}
}

func (p *Pipeline) ingestOne(ctx context.Context, doc LoadedDocument) (DocumentResult, error) {
	chunks, err := p.cfg.Splitter.Split(doc)
	if err != nil {
		return DocumentResult{}, err
	}
	if len(chunks) == 0 {
		return DocumentResult{DocumentID: doc.ID}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.PageContent
	}
	vectors, err := p.cfg.Embedder.Embed(ctx, texts)
	if err != nil {
		return DocumentResult{}, err
	}
	if len(vectors) != len(chunks) {
		return DocumentResult{}, errMismatchedEmbeddings
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
		if chunks[i].ID == "" {
			chunks[i].ID = doc.ID + "#" + strconv.Itoa(i)
		}
	}

	if err := p.cfg.VectorStore.Store(ctx, p.cfg.IndexName, chunks); err != nil {
		return DocumentResult{}, err
	}
	for i := range chunks {
		p.cfg.Listener.OnChunkStored(doc.ID, i)
	}
	return DocumentResult{DocumentID: doc.ID, ChunksStored: len(chunks)}, nil
}

