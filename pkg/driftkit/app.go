// Package driftkit is the Public API Surface (§4's component #10): a
// single facade type constructed once per process and shared across
// goroutines, exposing the External Interfaces operation table (§6) over
// the Chat Session Layer and Workflow Graph Model without any ambient
// singleton, per the design notes' rejection of process-wide globals (§9).
package driftkit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/chat"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/schema"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/telemetry"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/tracing"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

// ErrUnknownWorkflow is returned by workflow-metadata queries for an
// unregistered workflowId.
var ErrUnknownWorkflow = errors.New("driftkit: unknown workflowId")

// Config assembles the collaborators an App wires together. Every field is
// a plain constructed value, not a process-wide registry: callers build one
// Config per process and one App from it, per §9's explicit-construction
// design note.
type Config struct {
	Chat    *chat.Service
	Engine  *workflow.Engine
	Schemas *schema.Registry
	Sink    tracing.Sink
	Logger  telemetry.Logger

	// Workflows lists every Graph the process serves. The App indexes them
	// by WorkflowID for listWorkflows/getWorkflowDetails/getInitialSchema/
	// getWorkflowSchemas; each must already be registered on Engine via
	// Engine.RegisterGraph — App only reads their metadata.
	Workflows []*workflow.Graph
}

// App is the process-lifecycle object whose lifetime bounds the Workflow
// Engine's worker pool, the Tracing Sink's executor, and every collaborator
// reachable from it. It is safe for concurrent use from many goroutines.
type App struct {
	chat    *chat.Service
	engine  *workflow.Engine
	schemas *schema.Registry
	sink    tracing.Sink
	logger  telemetry.Logger

	mu        sync.RWMutex
	workflows map[string]*workflow.Graph
}

// New constructs an App from cfg.
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = tracing.NewNoopSink()
	}
	workflows := make(map[string]*workflow.Graph, len(cfg.Workflows))
	for _, g := range cfg.Workflows {
		workflows[g.WorkflowID] = g
	}
	return &App{
		chat:      cfg.Chat,
		engine:    cfg.Engine,
		schemas:   cfg.Schemas,
		sink:      sink,
		logger:    logger,
		workflows: workflows,
	}
}

// Close releases resources owned by the App's lifetime: the tracing sink's
// executor is drained up to timeout.
func (a *App) Close(timeout time.Duration) {
	a.sink.Close(timeout)
}

// ExecuteChat is the `executeChat` operation of §6's table.
func (a *App) ExecuteChat(ctx context.Context, chatID string, req chat.ChatRequest) (chat.ChatResponse, error) {
	if req.WorkflowID != "" {
		a.mu.RLock()
		_, known := a.workflows[req.WorkflowID]
		a.mu.RUnlock()
		if !known {
			return chat.ChatResponse{}, ErrUnknownWorkflow
		}
	}
	return a.chat.ExecuteChat(ctx, chatID, req)
}

// ResumeChat is the `resumeChat` operation of §6's table.
func (a *App) ResumeChat(ctx context.Context, messageID string, req chat.ChatRequest) (chat.ChatResponse, error) {
	return a.chat.ResumeChat(ctx, messageID, req)
}

// GetAsyncStatus is the `getAsyncStatus` operation of §6's table.
func (a *App) GetAsyncStatus(ctx context.Context, messageID string) (*chat.ChatResponse, error) {
	return a.chat.GetAsyncStatus(ctx, messageID)
}

// CompleteAsyncTask delivers a background task's result for messageID (the
// delivery side of an Async suspension; see pkg/chat's supplemented
// CompleteAsyncTask operation).
func (a *App) CompleteAsyncTask(ctx context.Context, messageID string, taskOutput any) (chat.ChatResponse, error) {
	return a.chat.CompleteAsyncTask(ctx, messageID, taskOutput)
}

// GetOrCreateSession is the `getChatSession`/`createChatSession` pairing of
// §6's table: it returns chatID's existing session or creates one owned by
// userID.
func (a *App) GetOrCreateSession(ctx context.Context, chatID, userID string) (chat.ChatSession, error) {
	return a.chat.GetOrCreateSession(ctx, chatID, userID)
}

// CreateChatSession is the `createChatSession` operation of §6's table.
func (a *App) CreateChatSession(ctx context.Context, session chat.ChatSession) (chat.ChatSession, error) {
	return a.chat.CreateChatSession(ctx, session)
}

// ArchiveChatSession is the `archiveChatSession` operation of §6's table.
func (a *App) ArchiveChatSession(ctx context.Context, chatID string) error {
	return a.chat.ArchiveChatSession(ctx, chatID)
}

// ListChatsForUser is the `listChatsForUser` operation of §6's table.
func (a *App) ListChatsForUser(ctx context.Context, userID string, page chat.PageRequest, includeArchived bool) ([]chat.ChatSession, error) {
	return a.chat.ListChatsForUser(ctx, userID, page, includeArchived)
}

// GetChatHistory is the `getChatHistory` operation of §6's table.
func (a *App) GetChatHistory(ctx context.Context, chatID string, page chat.PageRequest, includeContext bool) ([]chat.ChatMessage, error) {
	return a.chat.GetChatHistory(ctx, chatID, page, includeContext)
}

// CancelRun cancels the workflow run bound to instanceID, per §4.7.6.
func (a *App) CancelRun(ctx context.Context, instanceID string) error {
	return a.engine.Cancel(ctx, instanceID)
}

// ConvertMessageToTasks projects msg into its UI-facing ChatMessageTasks,
// per §4.8's `convertMessageToTasks` operation.
func (a *App) ConvertMessageToTasks(msg chat.ChatMessage) []chat.ChatMessageTask {
	return chat.ConvertMessageToTasks(msg)
}
