// Package redis implements workflow.RetryStateStore over Redis, backing the
// engine's per-step retry contexts and circuit-breaker snapshots with a
// client wrapping a caller-supplied *redis.Client, the same layering the
// teacher's Pulse stream client uses for its own Redis-backed dependency.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

// Options configures the Store.
type Options struct {
	// Redis is the connection backing the store. Required.
	Redis *redis.Client
	// KeyPrefix namespaces every key the store writes. Defaults to
	// "driftkit:retrystate:".
	KeyPrefix string
	// TTL bounds how long retry contexts and breaker snapshots survive
	// without being touched again. Zero means no expiry.
	TTL time.Duration
}

// Store implements workflow.RetryStateStore over Redis. Retry contexts and
// breaker snapshots are stored as JSON strings under deterministic keys;
// a per-instance set tracks which step IDs an instance has touched so
// DeleteWorkflowState can clean up without a key scan.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

const defaultKeyPrefix = "driftkit:retrystate:"

// New builds a Store from opts.
func New(opts Options) (*Store, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis: client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{client: opts.Redis, prefix: prefix, ttl: opts.TTL}, nil
}

func (s *Store) retryKey(instanceID, stepID string) string {
	return s.prefix + "retry:" + instanceID + ":" + stepID
}

func (s *Store) breakerKey(workflowID, stepID string) string {
	return s.prefix + "breaker:" + workflowID + ":" + stepID
}

func (s *Store) instanceStepsKey(instanceID string) string {
	return s.prefix + "instance-steps:" + instanceID
}

func (s *Store) instanceBreakersKey(instanceID string) string {
	return s.prefix + "instance-breakers:" + instanceID
}

type retryContextDoc struct {
	InstanceID    string            `json:"instanceId"`
	StepID        string            `json:"stepId"`
	AttemptNumber int               `json:"attemptNumber"`
	LastErrorKind workflow.ErrorKind `json:"lastErrorKind"`
	LastMessage   string            `json:"lastMessage"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func fromRetryContext(rc workflow.RetryContext) retryContextDoc {
	return retryContextDoc{
		InstanceID:    rc.InstanceID,
		StepID:        rc.StepID,
		AttemptNumber: rc.AttemptNumber,
		LastErrorKind: rc.LastErrorKind,
		LastMessage:   rc.LastMessage,
		UpdatedAt:     rc.UpdatedAt,
	}
}

func (d retryContextDoc) toRetryContext() workflow.RetryContext {
	return workflow.RetryContext{
		InstanceID:    d.InstanceID,
		StepID:        d.StepID,
		AttemptNumber: d.AttemptNumber,
		LastErrorKind: d.LastErrorKind,
		LastMessage:   d.LastMessage,
		UpdatedAt:     d.UpdatedAt,
	}
}

// SaveRetryContext persists rc and records stepID against its instance so
// DeleteWorkflowState can find it later.
func (s *Store) SaveRetryContext(ctx context.Context, rc workflow.RetryContext) error {
	if rc.InstanceID == "" || rc.StepID == "" {
		return errors.New("redis: instanceId and stepId are required")
	}
	payload, err := json.Marshal(fromRetryContext(rc))
	if err != nil {
		return fmt.Errorf("redis: marshal retry context: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.retryKey(rc.InstanceID, rc.StepID), payload, s.ttl)
	pipe.SAdd(ctx, s.instanceStepsKey(rc.InstanceID), rc.StepID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.instanceStepsKey(rc.InstanceID), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// LoadRetryContext returns the last persisted retry context for
// (instanceID, stepID), or ok=false if none exists.
func (s *Store) LoadRetryContext(ctx context.Context, instanceID, stepID string) (*workflow.RetryContext, bool, error) {
	raw, err := s.client.Get(ctx, s.retryKey(instanceID, stepID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var doc retryContextDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("redis: unmarshal retry context: %w", err)
	}
	rc := doc.toRetryContext()
	return &rc, true, nil
}

// DeleteRetryContext removes the persisted retry context for (instanceID,
// stepID), if any.
func (s *Store) DeleteRetryContext(ctx context.Context, instanceID, stepID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.retryKey(instanceID, stepID))
	pipe.SRem(ctx, s.instanceStepsKey(instanceID), stepID)
	_, err := pipe.Exec(ctx)
	return err
}

type breakerSnapshotDoc struct {
	WorkflowID          string              `json:"workflowId"`
	StepID              string              `json:"stepId"`
	State               workflow.BreakerState `json:"state"`
	ConsecutiveFailures int                 `json:"consecutiveFailures"`
	OpenedAt            time.Time           `json:"openedAt"`
}

func fromBreakerSnapshot(snap workflow.BreakerSnapshot) breakerSnapshotDoc {
	return breakerSnapshotDoc{
		WorkflowID:          snap.WorkflowID,
		StepID:              snap.StepID,
		State:               snap.State,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		OpenedAt:            snap.OpenedAt,
	}
}

func (d breakerSnapshotDoc) toBreakerSnapshot() workflow.BreakerSnapshot {
	return workflow.BreakerSnapshot{
		WorkflowID:          d.WorkflowID,
		StepID:              d.StepID,
		State:               d.State,
		ConsecutiveFailures: d.ConsecutiveFailures,
		OpenedAt:            d.OpenedAt,
	}
}

// SaveBreakerSnapshot persists snap, keyed by (workflowId, stepId) so it
// survives across every instance of that workflow.
func (s *Store) SaveBreakerSnapshot(ctx context.Context, snap workflow.BreakerSnapshot) error {
	if snap.WorkflowID == "" || snap.StepID == "" {
		return errors.New("redis: workflowId and stepId are required")
	}
	payload, err := json.Marshal(fromBreakerSnapshot(snap))
	if err != nil {
		return fmt.Errorf("redis: marshal breaker snapshot: %w", err)
	}
	return s.client.Set(ctx, s.breakerKey(snap.WorkflowID, snap.StepID), payload, s.ttl).Err()
}

// LoadBreakerSnapshot returns the current snapshot for (workflowID,
// stepID), or ok=false if the breaker has never tripped or reported.
func (s *Store) LoadBreakerSnapshot(ctx context.Context, workflowID, stepID string) (*workflow.BreakerSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.breakerKey(workflowID, stepID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var doc breakerSnapshotDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("redis: unmarshal breaker snapshot: %w", err)
	}
	snap := doc.toBreakerSnapshot()
	return &snap, true, nil
}

// MarkBreakerTouched records that instanceID's run consulted workflowID's
// stepID breaker, so DeleteWorkflowState can clean up its snapshot too.
// Callers that want breaker snapshots to outlive the instance (the normal
// case, since they are scoped per workflow/step) should not call this;
// it exists for callers that want instance-scoped cleanup semantics.
func (s *Store) MarkBreakerTouched(ctx context.Context, instanceID, workflowID, stepID string) error {
	return s.client.SAdd(ctx, s.instanceBreakersKey(instanceID), s.breakerKey(workflowID, stepID)).Err()
}

// DeleteWorkflowState deletes every retry context saved for instanceID and
// any breaker snapshot explicitly marked touched via MarkBreakerTouched.
func (s *Store) DeleteWorkflowState(ctx context.Context, instanceID string) error {
	stepsKey := s.instanceStepsKey(instanceID)
	steps, err := s.client.SMembers(ctx, stepsKey).Result()
	if err != nil {
		return err
	}
	breakersKey := s.instanceBreakersKey(instanceID)
	breakerKeys, err := s.client.SMembers(ctx, breakersKey).Result()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, stepID := range steps {
		pipe.Del(ctx, s.retryKey(instanceID, stepID))
	}
	for _, key := range breakerKeys {
		pipe.Del(ctx, key)
	}
	pipe.Del(ctx, stepsKey, breakersKey)
	_, err = pipe.Exec(ctx)
	return err
}

var _ workflow.RetryStateStore = (*Store)(nil)
