package mongo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/chat"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/tracing"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

var (
	testMongoClient    *mongodriver.Client
	testMongoContainer testcontainers.Container
	skipMongoTests     bool
)

// setupMongoContainer starts a disposable MongoDB instance for the package's
// integration tests, following the teacher's registry/store/mongo pattern:
// docker unavailability degrades to a skip rather than a failure.
func setupMongoContainer(t *testing.T) {
	t.Helper()
	if testMongoClient != nil {
		return
	}
	if skipMongoTests {
		t.Skip("docker not available, skipping MongoDB integration test")
	}

	ctx := context.Background()
	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		testMongoContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		skipMongoTests = true
		t.Skipf("docker not available, skipping MongoDB integration test: %v", containerErr)
	}

	host, err := testMongoContainer.Host(ctx)
	if err != nil {
		skipMongoTests = true
		t.Skipf("failed to get container host: %v", err)
	}
	port, err := testMongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		skipMongoTests = true
		t.Skipf("failed to get container port: %v", err)
	}

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	testMongoClient, err = mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		skipMongoTests = true
		t.Skipf("failed to connect to MongoDB: %v", err)
	}
	if err := testMongoClient.Ping(ctx, nil); err != nil {
		skipMongoTests = true
		t.Skipf("failed to ping MongoDB: %v", err)
	}
}

// TestChatStore_Integration_RoundTrip exercises the public NewChatStore
// constructor (index creation included) against a real MongoDB instance,
// the one path the hand-rolled fakes in chat_store_test.go can't cover.
func TestChatStore_Integration_RoundTrip(t *testing.T) {
	setupMongoContainer(t)

	store, err := NewChatStore(context.Background(), ChatStoreOptions{
		Client:   testMongoClient,
		Database: "driftkit_integration",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	ctx := context.Background()
	session := chat.ChatSession{ChatID: "integration-chat-1", UserID: "user-1", WorkflowID: "demo"}
	created, err := store.CreateSession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "integration-chat-1", created.ChatID)

	got, err := store.GetSession(ctx, "integration-chat-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)

	msg := chat.ChatMessage{
		ID:     "msg-1",
		ChatID: "integration-chat-1",
		Type:   chat.MessageTypeUser,
		Request: &chat.ChatRequest{
			WorkflowID: "demo",
			Properties: []chat.Property{{Name: "q", Value: "hi"}},
		},
	}
	require.NoError(t, store.AppendMessage(ctx, msg))

	messages, err := store.ListMessages(ctx, "integration-chat-1", chat.PageRequest{}, false)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Request.Properties[0].Value)
}

// TestContextRepository_Integration_SaveAndFind exercises NewContextRepository
// (and its unique index on instance_id) against a real MongoDB instance.
func TestContextRepository_Integration_SaveAndFind(t *testing.T) {
	setupMongoContainer(t)

	repo, err := NewContextRepository(context.Background(), ContextRepositoryOptions{
		Client:   testMongoClient,
		Database: "driftkit_integration",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	ctx := context.Background()
	state := &workflow.RunState{
		InstanceID:    "integration-run-1",
		WorkflowID:    "demo",
		Status:        workflow.StatusRunning,
		CurrentStepID: "start",
		StepOutputs:   map[string]any{"start": "ok"},
	}
	require.NoError(t, repo.Save(ctx, state))

	found, err := repo.FindByInstanceID(ctx, "integration-run-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "demo", found.WorkflowID)
	assert.Equal(t, "ok", found.StepOutputs["start"])

	exists, err := repo.ExistsByInstanceID(ctx, "integration-run-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.DeleteByInstanceID(ctx, "integration-run-1"))
	found, err = repo.FindByInstanceID(ctx, "integration-run-1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

// TestTraceStore_Integration_Save exercises NewTraceStore against a real
// MongoDB instance.
func TestTraceStore_Integration_Save(t *testing.T) {
	setupMongoContainer(t)

	store, err := NewTraceStore(context.Background(), TraceStoreOptions{
		Client:   testMongoClient,
		Database: "driftkit_integration",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	record := tracing.ModelTraceRecord{
		TraceID:      "trace-1",
		ContextID:    "chat-1",
		RequestType:  tracing.RequestTypeTextToText,
		Timestamp:    time.Now(),
		ModelID:      "claude",
		PromptTokens: 10,
	}
	require.NoError(t, store.Save(context.Background(), record))
}
