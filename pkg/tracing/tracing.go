// Package tracing implements the Tracing Sink: asynchronous, best-effort
// persistence of Model Trace Records on a small dedicated executor. Tracing
// never blocks a model round-trip beyond the cost of enqueueing a record,
// and drops records with a log line when the executor is saturated.
package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/telemetry"
)

type (
	// ModelTraceRecord is the canonical record of one model round-trip.
	// Exactly one record is produced per call to a model.Client method.
	ModelTraceRecord struct {
		TraceID          string
		ContextID        string // agent id, step id, chat id, ...
		ContextType      string
		RequestType      RequestType
		Timestamp        time.Time
		PromptTemplate   string
		PromptID         string
		Variables        map[string]string
		ModelID          string
		Response         string
		ExecutionTimeMS  int64
		PromptTokens     int
		CompletionTokens int
		ErrorMessage     string
	}

	// RequestType classifies the kind of model call a trace record
	// describes.
	RequestType string

	// RequestContext carries the caller-supplied fields of a
	// ModelTraceRecord that the model round-trip itself cannot know
	// (contextId/contextType, which prompt produced the request, and the
	// variables it was rendered with).
	RequestContext struct {
		ContextID      string
		ContextType    string
		RequestType    RequestType
		PromptTemplate string
		PromptID       string
		Variables      map[string]string
	}

	// Sink is the single-operation contract for trace persistence.
	Sink interface {
		// Trace enqueues rec for asynchronous persistence. Trace never
		// blocks beyond the cost of enqueueing; it never returns an error
		// to the caller since tracing failures must never fail the model
		// call that produced the record.
		Trace(ctx context.Context, rec ModelTraceRecord)

		// Close stops accepting new records and waits for queued records
		// to drain, up to the given timeout.
		Close(timeout time.Duration)
	}

	// Store is the durable backend a Sink persists records through.
	Store interface {
		Save(ctx context.Context, rec ModelTraceRecord) error
	}
)

const (
	RequestTypeTextToText  RequestType = "TEXT_TO_TEXT"
	RequestTypeTextToImage RequestType = "TEXT_TO_IMAGE"
	RequestTypeImageToText RequestType = "IMAGE_TO_TEXT"
)

// global holds the process-wide active sink. A null sink is installed by
// default; components obtain it via Active and never hold a singleton
// reference directly so tests can swap it with SetActive.
var global struct {
	sink Sink
}

func init() {
	global.sink = NewNoopSink()
}

// SetActive installs sink as the process-wide active tracing sink.
func SetActive(sink Sink) {
	if sink == nil {
		sink = NewNoopSink()
	}
	global.sink = sink
}

// Active returns the process-wide active tracing sink.
func Active() Sink { return global.sink }

// NewTraceID generates a new opaque trace identifier.
func NewTraceID() string { return uuid.NewString() }

// noopSink discards every record. It is the default Active() sink and a
// convenient stand-in in tests that do not care about tracing.
type noopSink struct{}

// NewNoopSink returns a Sink that discards all records.
func NewNoopSink() Sink { return noopSink{} }

func (noopSink) Trace(context.Context, ModelTraceRecord) {}
func (noopSink) Close(time.Duration)                     {}

// executorSink persists records asynchronously on a small dedicated worker
// pool fed by a bounded channel, per the design's "small dedicated
// executor" sizing note. When the channel is full, Trace drops the record
// and logs a warning rather than blocking the caller.
type executorSink struct {
	store  Store
	logger telemetry.Logger
	queue  chan ModelTraceRecord
	done   chan struct{}
}

// NewExecutorSink starts a Sink backed by store, draining records with
// workers goroutines from a queue of the given capacity.
func NewExecutorSink(store Store, logger telemetry.Logger, workers, queueCapacity int) Sink {
	if workers <= 0 {
		workers = 2
	}
	if queueCapacity <= 0 {
		queueCapacity = 256
	}
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	s := &executorSink{
		store:  store,
		logger: logger,
		queue:  make(chan ModelTraceRecord, queueCapacity),
		done:   make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

func (s *executorSink) worker() {
	for rec := range s.queue {
		ctx := context.Background()
		if err := s.store.Save(ctx, rec); err != nil {
			s.logger.Warn(ctx, "tracing: failed to persist trace record", "traceId", rec.TraceID, "error", err)
		}
	}
	close(s.done)
}

func (s *executorSink) Trace(ctx context.Context, rec ModelTraceRecord) {
	if rec.TraceID == "" {
		rec.TraceID = NewTraceID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = timeNow()
	}
	select {
	case s.queue <- rec:
	default:
		s.logger.Warn(ctx, "tracing: dropping trace record, executor saturated", "traceId", rec.TraceID, "contextId", rec.ContextID)
	}
}

func (s *executorSink) Close(timeout time.Duration) {
	close(s.queue)
	select {
	case <-s.done:
	case <-time.After(timeout):
	}
}

// timeNow is a seam for tests; overridden to time.Now in production via the
// default assignment below (kept as a var, not a direct time.Now call, so
// record timestamps can be injected deterministically in tests).
var timeNow = time.Now
