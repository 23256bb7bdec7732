package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

const defaultRunStateCollection = "workflow_run_state"

// ContextRepositoryOptions configures a new ContextRepository.
type ContextRepositoryOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// ContextRepository implements workflow.ContextRepository over MongoDB,
// one document per instance, upserted wholesale on every Save so a run's
// latest snapshot always reflects the engine's last persisted transition.
type ContextRepository struct {
	runs    collection
	timeout time.Duration
}

// NewContextRepository builds a ContextRepository and ensures its indexes.
func NewContextRepository(ctx context.Context, opts ContextRepositoryOptions) (*ContextRepository, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	name := opts.Collection
	if name == "" {
		name = defaultRunStateCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	r := newContextRepository(newCollection(db, name), timeout)
	idxCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if _, err := r.runs.Indexes().CreateOne(idxCtx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "instance_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	return r, nil
}

func newContextRepository(runs collection, timeout time.Duration) *ContextRepository {
	return &ContextRepository{runs: runs, timeout: timeout}
}

type runStateDocument struct {
	InstanceID           string         `bson:"instance_id"`
	WorkflowID           string         `bson:"workflow_id"`
	Status               string         `bson:"status"`
	CurrentStepID        string         `bson:"current_step_id"`
	StepOutputs          map[string]any `bson:"step_outputs,omitempty"`
	StepInvocationCounts map[string]int `bson:"step_invocation_counts,omitempty"`
	SuspendedMessageID   string         `bson:"suspended_message_id,omitempty"`
	SuspendedIsAsync     bool           `bson:"suspended_is_async,omitempty"`
	NextSchemaRef        string         `bson:"next_schema_ref,omitempty"`
	FinalResult          any            `bson:"final_result,omitempty"`
	FailureKind          string         `bson:"failure_kind,omitempty"`
	FailureMessage       string         `bson:"failure_message,omitempty"`
	CancelRequested      bool           `bson:"cancel_requested,omitempty"`
	Deadline             time.Time      `bson:"deadline,omitempty"`
	CreatedAt            time.Time      `bson:"created_at"`
	UpdatedAt            time.Time      `bson:"updated_at"`
}

func fromRunState(s *workflow.RunState) runStateDocument {
	return runStateDocument{
		InstanceID:           s.InstanceID,
		WorkflowID:           s.WorkflowID,
		Status:               string(s.Status),
		CurrentStepID:        s.CurrentStepID,
		StepOutputs:          s.StepOutputs,
		StepInvocationCounts: s.StepInvocationCounts,
		SuspendedMessageID:   s.SuspendedMessageID,
		SuspendedIsAsync:     s.SuspendedIsAsync,
		NextSchemaRef:        s.NextSchemaRef,
		FinalResult:          s.FinalResult,
		FailureKind:          s.FailureKind,
		FailureMessage:       s.FailureMessage,
		CancelRequested:      s.CancelRequested,
		Deadline:             s.Deadline,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func (d runStateDocument) toRunState() *workflow.RunState {
	return &workflow.RunState{
		InstanceID:           d.InstanceID,
		WorkflowID:           d.WorkflowID,
		Status:               workflow.Status(d.Status),
		CurrentStepID:        d.CurrentStepID,
		StepOutputs:          d.StepOutputs,
		StepInvocationCounts: d.StepInvocationCounts,
		SuspendedMessageID:   d.SuspendedMessageID,
		SuspendedIsAsync:     d.SuspendedIsAsync,
		NextSchemaRef:        d.NextSchemaRef,
		FinalResult:          d.FinalResult,
		FailureKind:          d.FailureKind,
		FailureMessage:       d.FailureMessage,
		CancelRequested:      d.CancelRequested,
		Deadline:             d.Deadline,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

// Save upserts state wholesale, keyed by InstanceID.
func (r *ContextRepository) Save(ctx context.Context, state *workflow.RunState) error {
	if state == nil || state.InstanceID == "" {
		return errors.New("mongo: instance id is required")
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	doc := fromRunState(state)
	_, err := r.runs.UpdateOne(ctx, bson.M{"instance_id": doc.InstanceID}, bson.M{"$set": doc}, options.UpdateOne().SetUpsert(true))
	return err
}

// FindByInstanceID returns a defensive copy of instanceID's persisted state.
func (r *ContextRepository) FindByInstanceID(ctx context.Context, instanceID string) (*workflow.RunState, error) {
	if instanceID == "" {
		return nil, errors.New("mongo: instance id is required")
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	var doc runStateDocument
	if err := r.runs.FindOne(ctx, bson.M{"instance_id": instanceID}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toRunState().Clone(), nil
}

func (r *ContextRepository) DeleteByInstanceID(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return errors.New("mongo: instance id is required")
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.runs.DeleteOne(ctx, bson.M{"instance_id": instanceID})
	return err
}

func (r *ContextRepository) ExistsByInstanceID(ctx context.Context, instanceID string) (bool, error) {
	if instanceID == "" {
		return false, errors.New("mongo: instance id is required")
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	var doc runStateDocument
	err := r.runs.FindOne(ctx, bson.M{"instance_id": instanceID}).Decode(&doc)
	if err == nil {
		return true, nil
	}
	if isNoDocuments(err) {
		return false, nil
	}
	return false, err
}

var _ workflow.ContextRepository = (*ContextRepository)(nil)
