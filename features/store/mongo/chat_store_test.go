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

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/chat"
)

func TestChatStore_GetSession_NotFound(t *testing.T) {
	sessions := &fakeCollection{
		findOneFn: func(context.Context, any, ...options.Lister[options.FindOneOptions]) singleResult {
			return notFoundResult()
		},
	}
	store := newChatStore(sessions, &fakeCollection{}, &fakeCollection{}, time.Second)

	_, err := store.GetSession(context.Background(), "chat-1")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestChatStore_GetSession_Found(t *testing.T) {
	want := sessionDocument{ChatID: "chat-1", UserID: "user-1", Name: "demo"}
	sessions := &fakeCollection{
		findOneFn: func(_ context.Context, filter any, _ ...options.Lister[options.FindOneOptions]) singleResult {
			assert.Equal(t, "chat-1", filter.(bson.M)["chat_id"])
			return fakeSingleResult{doc: want}
		},
	}
	store := newChatStore(sessions, &fakeCollection{}, &fakeCollection{}, time.Second)

	got, err := store.GetSession(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", got.ChatID)
	assert.Equal(t, "demo", got.Name)
}

func TestChatStore_CreateSession_ReturnsExistingWhenAlreadyPresent(t *testing.T) {
	existing := sessionDocument{ChatID: "chat-1", UserID: "user-1"}
	sessions := &fakeCollection{
		findOneFn: func(context.Context, any, ...options.Lister[options.FindOneOptions]) singleResult {
			return fakeSingleResult{doc: existing}
		},
	}
	store := newChatStore(sessions, &fakeCollection{}, &fakeCollection{}, time.Second)

	got, err := store.CreateSession(context.Background(), chat.ChatSession{ChatID: "chat-1", UserID: "someone-else"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID, "existing session wins, matching idempotent-create semantics")
}

func TestChatStore_CreateSession_InsertsWhenAbsent(t *testing.T) {
	callCount := 0
	sessions := &fakeCollection{
		findOneFn: func(context.Context, any, ...options.Lister[options.FindOneOptions]) singleResult {
			callCount++
			if callCount == 1 {
				return notFoundResult()
			}
			return fakeSingleResult{doc: sessionDocument{ChatID: "chat-1", UserID: "user-1"}}
		},
		updateOneFn: func(_ context.Context, filter, update any, _ ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
			assert.Equal(t, "chat-1", filter.(bson.M)["chat_id"])
			setOnInsert, ok := update.(bson.M)["$setOnInsert"]
			require.True(t, ok)
			assert.Equal(t, "user-1", setOnInsert.(sessionDocument).UserID)
			return &mongodriver.UpdateResult{UpsertedCount: 1}, nil
		},
	}
	store := newChatStore(sessions, &fakeCollection{}, &fakeCollection{}, time.Second)

	got, err := store.CreateSession(context.Background(), chat.ChatSession{ChatID: "chat-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, 2, callCount)
}

func TestChatStore_SaveSession_Upserts(t *testing.T) {
	sessions := &fakeCollection{
		updateOneFn: func(_ context.Context, filter, update any, _ ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
			assert.Equal(t, "chat-1", filter.(bson.M)["chat_id"])
			set, ok := update.(bson.M)["$set"]
			require.True(t, ok)
			assert.True(t, set.(sessionDocument).Archived)
			return &mongodriver.UpdateResult{}, nil
		},
	}
	store := newChatStore(sessions, &fakeCollection{}, &fakeCollection{}, time.Second)

	err := store.SaveSession(context.Background(), chat.ChatSession{ChatID: "chat-1", Archived: true})
	require.NoError(t, err)
}

func TestChatStore_AppendMessage_RequiresIDs(t *testing.T) {
	store := newChatStore(&fakeCollection{}, &fakeCollection{}, &fakeCollection{}, time.Second)
	err := store.AppendMessage(context.Background(), chat.ChatMessage{})
	assert.Error(t, err)
}

func TestChatStore_AppendMessage_Inserts(t *testing.T) {
	var inserted any
	messages := &fakeCollection{
		insertOneFn: func(_ context.Context, doc any, _ ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
			inserted = doc
			return &mongodriver.InsertOneResult{}, nil
		},
	}
	store := newChatStore(&fakeCollection{}, messages, &fakeCollection{}, time.Second)

	err := store.AppendMessage(context.Background(), chat.ChatMessage{
		ID:     "msg-1",
		ChatID: "chat-1",
		Type:   chat.MessageTypeUser,
		Request: &chat.ChatRequest{
			WorkflowID: "wf-1",
			Properties: []chat.Property{{Name: "foo", Value: "bar"}},
		},
	})
	require.NoError(t, err)
	doc := inserted.(messageDocument)
	assert.Equal(t, "msg-1", doc.ID)
	require.NotNil(t, doc.Request)
	assert.Equal(t, "wf-1", doc.Request.WorkflowID)
	require.Len(t, doc.Request.Properties, 1)
	assert.Equal(t, "bar", doc.Request.Properties[0].Value)
}

func TestChatStore_ListMessages_ExcludesContextByDefault(t *testing.T) {
	messages := &fakeCollection{
		findFn: func(_ context.Context, filter any, _ ...options.Lister[options.FindOptions]) (cursor, error) {
			typeFilter, ok := filter.(bson.M)["type"]
			require.True(t, ok)
			assert.Equal(t, chat.MessageTypeContext, typeFilter.(bson.M)["$ne"])
			return &fakeCursor{docs: []any{
				messageDocument{ID: "m1", ChatID: "chat-1", Type: chat.MessageTypeUser},
			}}, nil
		},
	}
	store := newChatStore(&fakeCollection{}, messages, &fakeCollection{}, time.Second)

	out, err := store.ListMessages(context.Background(), "chat-1", chat.PageRequest{}, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "m1", out[0].ID)
}

func TestChatStore_PendingMessage_RoundTrip(t *testing.T) {
	var saved any
	pending := &fakeCollection{
		updateOneFn: func(_ context.Context, _, update any, _ ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
			saved = update.(bson.M)["$set"]
			return &mongodriver.UpdateResult{}, nil
		},
		findOneFn: func(context.Context, any, ...options.Lister[options.FindOneOptions]) singleResult {
			return fakeSingleResult{doc: saved}
		},
		deleteOneFn: func(context.Context, any, ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error) {
			return &mongodriver.DeleteResult{DeletedCount: 1}, nil
		},
	}
	store := newChatStore(&fakeCollection{}, &fakeCollection{}, pending, time.Second)

	err := store.SavePendingMessage(context.Background(), "msg-1", "chat-1", chat.ChatResponse{Text: "hi", MessageID: "msg-1"})
	require.NoError(t, err)

	chatID, resp, ok, err := store.LoadPendingMessage(context.Background(), "msg-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "chat-1", chatID)
	assert.Equal(t, "hi", resp.Text)

	require.NoError(t, store.DeletePendingMessage(context.Background(), "msg-1"))
}

func TestChatStore_LoadPendingMessage_NotFound(t *testing.T) {
	pending := &fakeCollection{
		findOneFn: func(context.Context, any, ...options.Lister[options.FindOneOptions]) singleResult {
			return notFoundResult()
		},
	}
	store := newChatStore(&fakeCollection{}, &fakeCollection{}, pending, time.Second)

	_, _, ok, err := store.LoadPendingMessage(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
