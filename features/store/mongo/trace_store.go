package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/tracing"
)

const defaultTracesCollection = "model_traces"

// TraceStoreOptions configures a new TraceStore.
type TraceStoreOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// TraceStore implements tracing.Store over MongoDB, the durable backend an
// executor Sink persists ModelTraceRecords through off the request path.
type TraceStore struct {
	traces  collection
	timeout time.Duration
}

// NewTraceStore builds a TraceStore and ensures its indexes.
func NewTraceStore(ctx context.Context, opts TraceStoreOptions) (*TraceStore, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	name := opts.Collection
	if name == "" {
		name = defaultTracesCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := newTraceStore(newCollection(db, name), timeout)
	idxCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if _, err := s.traces.Indexes().CreateOne(idxCtx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "trace_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	if _, err := s.traces.Indexes().CreateOne(idxCtx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "context_id", Value: 1}, {Key: "timestamp", Value: -1}},
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func newTraceStore(traces collection, timeout time.Duration) *TraceStore {
	return &TraceStore{traces: traces, timeout: timeout}
}

type traceDocument struct {
	TraceID          string            `bson:"trace_id"`
	ContextID        string            `bson:"context_id,omitempty"`
	ContextType      string            `bson:"context_type,omitempty"`
	RequestType      string            `bson:"request_type,omitempty"`
	Timestamp        time.Time         `bson:"timestamp"`
	PromptTemplate    string            `bson:"prompt_template,omitempty"`
	PromptID         string            `bson:"prompt_id,omitempty"`
	Variables        map[string]string `bson:"variables,omitempty"`
	ModelID          string            `bson:"model_id,omitempty"`
	Response         string            `bson:"response,omitempty"`
	ExecutionTimeMS  int64             `bson:"execution_time_ms"`
	PromptTokens     int               `bson:"prompt_tokens"`
	CompletionTokens int               `bson:"completion_tokens"`
	ErrorMessage     string            `bson:"error_message,omitempty"`
}

func fromTraceRecord(rec tracing.ModelTraceRecord) traceDocument {
	return traceDocument{
		TraceID:          rec.TraceID,
		ContextID:        rec.ContextID,
		ContextType:      rec.ContextType,
		RequestType:      string(rec.RequestType),
		Timestamp:        rec.Timestamp,
		PromptTemplate:   rec.PromptTemplate,
		PromptID:         rec.PromptID,
		Variables:        rec.Variables,
		ModelID:          rec.ModelID,
		Response:         rec.Response,
		ExecutionTimeMS:  rec.ExecutionTimeMS,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		ErrorMessage:     rec.ErrorMessage,
	}
}

// Save inserts rec. Trace records are append-only: the executor Sink never
// updates a previously persisted record.
func (s *TraceStore) Save(ctx context.Context, rec tracing.ModelTraceRecord) error {
	if rec.TraceID == "" {
		return errors.New("mongo: trace id is required")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.traces.InsertOne(ctx, fromTraceRecord(rec))
	return err
}

var _ tracing.Store = (*TraceStore)(nil)
