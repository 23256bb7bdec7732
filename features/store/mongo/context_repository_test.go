package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

func TestContextRepository_Save_RequiresInstanceID(t *testing.T) {
	repo := newContextRepository(&fakeCollection{}, time.Second)
	err := repo.Save(context.Background(), &workflow.RunState{})
	assert.Error(t, err)
}

func TestContextRepository_Save_Upserts(t *testing.T) {
	runs := &fakeCollection{
		updateOneFn: func(_ context.Context, filter, update any, _ ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
			assert.Equal(t, "run-1", filter.(bson.M)["instance_id"])
			set, ok := update.(bson.M)["$set"]
			require.True(t, ok)
			assert.Equal(t, "wf-1", set.(runStateDocument).WorkflowID)
			return &mongodriver.UpdateResult{}, nil
		},
	}
	repo := newContextRepository(runs, time.Second)

	err := repo.Save(context.Background(), &workflow.RunState{InstanceID: "run-1", WorkflowID: "wf-1"})
	require.NoError(t, err)
}

func TestContextRepository_FindByInstanceID_NotFoundReturnsNilNil(t *testing.T) {
	runs := &fakeCollection{
		findOneFn: func(context.Context, any, ...options.Lister[options.FindOneOptions]) singleResult {
			return notFoundResult()
		},
	}
	repo := newContextRepository(runs, time.Second)

	state, err := repo.FindByInstanceID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestContextRepository_FindByInstanceID_ReturnsDefensiveCopy(t *testing.T) {
	doc := runStateDocument{
		InstanceID:  "run-1",
		WorkflowID:  "wf-1",
		Status:      string(workflow.StatusSuspended),
		StepOutputs: map[string]any{"step-a": "value"},
	}
	runs := &fakeCollection{
		findOneFn: func(_ context.Context, filter any, _ ...options.Lister[options.FindOneOptions]) singleResult {
			assert.Equal(t, "run-1", filter.(bson.M)["instance_id"])
			return fakeSingleResult{doc: doc}
		},
	}
	repo := newContextRepository(runs, time.Second)

	state, err := repo.FindByInstanceID(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "wf-1", state.WorkflowID)
	assert.Equal(t, workflow.StatusSuspended, state.Status)

	state.StepOutputs["step-a"] = "mutated"
	again, err := repo.FindByInstanceID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "value", again.StepOutputs["step-a"], "each FindByInstanceID call returns an independent copy")
}

func TestContextRepository_DeleteByInstanceID(t *testing.T) {
	called := false
	runs := &fakeCollection{
		deleteOneFn: func(_ context.Context, filter any, _ ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error) {
			called = true
			assert.Equal(t, "run-1", filter.(bson.M)["instance_id"])
			return &mongodriver.DeleteResult{DeletedCount: 1}, nil
		},
	}
	repo := newContextRepository(runs, time.Second)

	require.NoError(t, repo.DeleteByInstanceID(context.Background(), "run-1"))
	assert.True(t, called)
}

func TestContextRepository_ExistsByInstanceID(t *testing.T) {
	runs := &fakeCollection{
		findOneFn: func(context.Context, any, ...options.Lister[options.FindOneOptions]) singleResult {
			return fakeSingleResult{doc: runStateDocument{InstanceID: "run-1"}}
		},
	}
	repo := newContextRepository(runs, time.Second)

	ok, err := repo.ExistsByInstanceID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestContextRepository_ExistsByInstanceID_False(t *testing.T) {
	runs := &fakeCollection{
		findOneFn: func(context.Context, any, ...options.Lister[options.FindOneOptions]) singleResult {
			return notFoundResult()
		},
	}
	repo := newContextRepository(runs, time.Second)

	ok, err := repo.ExistsByInstanceID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
