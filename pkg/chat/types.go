// Package chat implements the Chat Session Layer: it accepts external
// ChatRequests, chooses or creates a workflow run, delegates to the
// Workflow Engine, and projects the engine's result back as a
// ChatResponse plus a UI-friendly list of ChatMessageTasks.
package chat

import (
	"time"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

type (
	// MessageType discriminates a ChatMessage's role in the conversation.
	MessageType string

	// ChatSession is a durable conversational container. ChatID is unique;
	// every operation on a given ChatID is serialized by Service.
	ChatSession struct {
		ChatID          string
		UserID          string
		Name            string
		Language        string
		SystemMessage   string
		MemoryLength    int
		Archived        bool
		LastMessageTime time.Time
		// Labels carries tenant/priority metadata, grounded on the teacher's
		// run.Context.Labels.
		Labels map[string]string

		// WorkflowID / InstanceID track the workflow run currently bound to
		// this chat, if any.
		WorkflowID string
		InstanceID string
		// PendingMessageID is set while InstanceID is SUSPENDED, whether
		// on a Suspend or an Async variant, to the messageId the run is
		// waiting on; empty otherwise.
		PendingMessageID string
	}

	// Property is a key/value pair attached to a ChatMessage. DataNameID
	// names a property from earlier in the chat history whose value this
	// property should inherit; Data holds the value once resolved.
	Property struct {
		Name        string
		NameID      string
		Value       string
		Type        string
		MultiSelect bool
		DataNameID  string
		Data        any
	}

	// ChatRequest is a USER-originated ChatMessage payload.
	ChatRequest struct {
		WorkflowID        string
		RequestSchemaName string
		Properties        []Property
		Language          string
	}

	// ChatResponse is an AI-originated ChatMessage payload, or the
	// projection of a workflow Outcome back to the external caller.
	ChatResponse struct {
		Text            string
		Properties      []Property
		NextSchema      string
		Completed       bool
		PercentComplete int
		// MessageID is set while a response corresponds to an outstanding
		// suspend (sync resume or async task completion).
		MessageID string
		// Error is set to the run's failure kind when the underlying
		// workflow transitioned to FAILED; empty otherwise.
		Error workflow.ErrorKind
	}

	// ChatMessage is the polymorphic unit of chat history. Exactly one of
	// Request / Response is set, selected by Type.
	ChatMessage struct {
		ID        string
		ChatID    string
		Timestamp time.Time
		Type      MessageType
		Request   *ChatRequest
		Response  *ChatResponse
	}

	// ChatMessageTask is one nameId-bearing property of a ChatMessage,
	// projected for UI rendering.
	ChatMessageTask struct {
		NameID     string
		Name       string
		Value      string
		NextSchema string
	}

	// PageRequest bounds a paginated list. A zero Limit means unbounded.
	PageRequest struct {
		Offset int
		Limit  int
	}
)

const (
	MessageTypeUser    MessageType = "USER"
	MessageTypeAI      MessageType = "AI"
	MessageTypeContext MessageType = "CONTEXT"
	MessageTypeSystem  MessageType = "SYSTEM"
)
