package workflow

import (
	"context"
	"time"
)

type (
	// ContextRepository is the workflow engine's outbound contract for
	// durable run state, per §4.7.7. Implementations must return a
	// defensive copy on read; Save must be atomic per instance.
	ContextRepository interface {
		Save(ctx context.Context, state *RunState) error
		FindByInstanceID(ctx context.Context, instanceID string) (*RunState, error)
		DeleteByInstanceID(ctx context.Context, instanceID string) error
		ExistsByInstanceID(ctx context.Context, instanceID string) (bool, error)
	}

	// RetryStateStore is the workflow engine's outbound contract for
	// retry contexts and circuit-breaker snapshots. The engine calls every
	// method synchronously; the contract has no separate asynchronous or
	// synchronous save mode.
	RetryStateStore interface {
		SaveRetryContext(ctx context.Context, rc RetryContext) error
		LoadRetryContext(ctx context.Context, instanceID, stepID string) (*RetryContext, bool, error)
		DeleteRetryContext(ctx context.Context, instanceID, stepID string) error

		SaveBreakerSnapshot(ctx context.Context, snap BreakerSnapshot) error
		LoadBreakerSnapshot(ctx context.Context, workflowID, stepID string) (*BreakerSnapshot, bool, error)

		// DeleteWorkflowState deletes every retry context and breaker
		// snapshot associated with instanceID, on demand.
		DeleteWorkflowState(ctx context.Context, instanceID string) error
	}
)

// SaveTimeout is a timeout budget for RetryStateStore saves, per §4.7.7's
// "e.g. 5s" guidance. Neither the engine nor the stores in this module
// apply it.
const SaveTimeout = 5 * time.Second
