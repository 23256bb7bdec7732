// Package inmem provides in-memory implementations of the Workflow
// Engine's ContextRepository and RetryStateStore contracts, suitable for
// single-instance deployments and tests per §4.7.7.
package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

// ContextRepository is an in-memory workflow.ContextRepository. Reads
// return a defensive copy via RunState.Clone.
type ContextRepository struct {
	mu    sync.RWMutex
	byID  map[string]*workflow.RunState
}

// NewContextRepository constructs an empty ContextRepository.
func NewContextRepository() *ContextRepository {
	return &ContextRepository{byID: make(map[string]*workflow.RunState)}
}

func (r *ContextRepository) Save(_ context.Context, state *workflow.RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[state.InstanceID] = state.Clone()
	return nil
}

func (r *ContextRepository) FindByInstanceID(_ context.Context, instanceID string) (*workflow.RunState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.byID[instanceID]
	if !ok {
		return nil, fmt.Errorf("inmem: no run state for instance %q", instanceID)
	}
	return state.Clone(), nil
}

func (r *ContextRepository) DeleteByInstanceID(_ context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, instanceID)
	return nil
}

func (r *ContextRepository) ExistsByInstanceID(_ context.Context, instanceID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[instanceID]
	return ok, nil
}

// RetryStateStore is an in-memory workflow.RetryStateStore. Saves are
// synchronous: the in-memory engine has no I/O latency to hide behind an
// asynchronous save, satisfying §4.7.7's "synchronous mode must be
// available for tests" requirement directly.
type RetryStateStore struct {
	mu        sync.Mutex
	retries   map[string]workflow.RetryContext
	breakers  map[string]workflow.BreakerSnapshot
	instanceSteps map[string][]string // instanceID -> stepIDs with a retry context, for DeleteWorkflowState
}

// NewRetryStateStore constructs an empty RetryStateStore.
func NewRetryStateStore() *RetryStateStore {
	return &RetryStateStore{
		retries:       make(map[string]workflow.RetryContext),
		breakers:      make(map[string]workflow.BreakerSnapshot),
		instanceSteps: make(map[string][]string),
	}
}

func retryKey(instanceID, stepID string) string { return instanceID + "\x00" + stepID }
func breakerKey(workflowID, stepID string) string { return workflowID + "\x00" + stepID }

func (s *RetryStateStore) SaveRetryContext(_ context.Context, rc workflow.RetryContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := retryKey(rc.InstanceID, rc.StepID)
	if _, exists := s.retries[key]; !exists {
		s.instanceSteps[rc.InstanceID] = append(s.instanceSteps[rc.InstanceID], rc.StepID)
	}
	s.retries[key] = rc
	return nil
}

func (s *RetryStateStore) LoadRetryContext(_ context.Context, instanceID, stepID string) (*workflow.RetryContext, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.retries[retryKey(instanceID, stepID)]
	if !ok {
		return nil, false, nil
	}
	return &rc, true, nil
}

func (s *RetryStateStore) DeleteRetryContext(_ context.Context, instanceID, stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retries, retryKey(instanceID, stepID))
	return nil
}

func (s *RetryStateStore) SaveBreakerSnapshot(_ context.Context, snap workflow.BreakerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers[breakerKey(snap.WorkflowID, snap.StepID)] = snap
	return nil
}

func (s *RetryStateStore) LoadBreakerSnapshot(_ context.Context, workflowID, stepID string) (*workflow.BreakerSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.breakers[breakerKey(workflowID, stepID)]
	if !ok {
		return nil, false, nil
	}
	return &snap, true, nil
}

func (s *RetryStateStore) DeleteWorkflowState(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stepID := range s.instanceSteps[instanceID] {
		delete(s.retries, retryKey(instanceID, stepID))
	}
	delete(s.instanceSteps, instanceID)
	return nil
}
