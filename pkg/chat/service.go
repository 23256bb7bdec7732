package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/telemetry"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

// Config configures a new Service.
type Config struct {
	Store  Store
	Engine *workflow.Engine
	Logger telemetry.Logger
}

// Service is the Chat Session Layer: it accepts ChatRequests, starts or
// resumes the bound workflow run via Engine, and projects the result back
// as ChatResponses and ChatMessageTasks. Every operation on a given chatID
// is serialized; operations across distinct chats run concurrently.
type Service struct {
	store  Store
	engine *workflow.Engine
	logger telemetry.Logger
	locks  sync.Map // chatID -> *sync.Mutex
}

// New constructs a Service from cfg.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Service{store: cfg.Store, engine: cfg.Engine, logger: logger}
}

func (s *Service) lockFor(chatID string) *sync.Mutex {
	l, _ := s.locks.LoadOrStore(chatID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// ExecuteChat accepts a ChatRequest for chatID: if the chat has no run
// bound to it, or its prior run reached a terminal state, a fresh workflow
// run is started; if the chat's run is suspended awaiting the next turn,
// the request resumes it instead.
func (s *Service) ExecuteChat(ctx context.Context, chatID string, req ChatRequest) (ChatResponse, error) {
	lock := s.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.GetSession(ctx, chatID)
	if errors.Is(err, ErrSessionNotFound) {
		session = ChatSession{ChatID: chatID}
	} else if err != nil {
		return ChatResponse{}, err
	} else if session.Archived {
		return ChatResponse{}, ErrSessionArchived
	}

	resolved, err := s.resolveDataNameIDs(ctx, chatID, req.Properties)
	if err != nil {
		return ChatResponse{}, err
	}
	req.Properties = resolved

	if err := s.appendMessage(ctx, chatID, MessageTypeUser, &req, nil); err != nil {
		return ChatResponse{}, err
	}

	var outcome workflow.Outcome
	var runErr error
	if session.PendingMessageID != "" {
		pendingID := session.PendingMessageID
		outcome, runErr = s.engine.ResumeRun(ctx, pendingID, req)
		if derr := s.store.DeletePendingMessage(ctx, pendingID); derr != nil {
			s.logger.Warn(ctx, "chat: failed to clear pending message", "chatId", chatID, "messageId", pendingID, "error", derr)
		}
	} else {
		if req.WorkflowID == "" {
			return ChatResponse{}, ErrUnknownWorkflow
		}
		instanceID := uuid.NewString()
		outcome, runErr = s.engine.StartRun(ctx, req.WorkflowID, instanceID, req)
		session.WorkflowID = req.WorkflowID
		session.InstanceID = instanceID
	}

	return s.settleOutcome(ctx, chatID, &session, outcome, runErr)
}

// ResumeChat delivers req as the resume input for messageID, per §4.7.3's
// suspend/resume contract.
func (s *Service) ResumeChat(ctx context.Context, messageID string, req ChatRequest) (ChatResponse, error) {
	chatID, _, ok, err := s.store.LoadPendingMessage(ctx, messageID)
	if err != nil {
		return ChatResponse{}, err
	}
	if !ok {
		return ChatResponse{}, ErrMessageNotFound
	}

	lock := s.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return ChatResponse{}, err
	}

	resolved, err := s.resolveDataNameIDs(ctx, chatID, req.Properties)
	if err != nil {
		return ChatResponse{}, err
	}
	req.Properties = resolved

	if err := s.appendMessage(ctx, chatID, MessageTypeUser, &req, nil); err != nil {
		return ChatResponse{}, err
	}

	outcome, runErr := s.engine.ResumeRun(ctx, messageID, req)
	if derr := s.store.DeletePendingMessage(ctx, messageID); derr != nil {
		s.logger.Warn(ctx, "chat: failed to clear pending message", "chatId", chatID, "messageId", messageID, "error", derr)
	}
	session.PendingMessageID = ""

	return s.settleOutcome(ctx, chatID, &session, outcome, runErr)
}

// GetAsyncStatus returns the last known status recorded for an outstanding
// async or suspended messageID, or ErrMessageNotFound once it has resolved
// and been cleared.
func (s *Service) GetAsyncStatus(ctx context.Context, messageID string) (*ChatResponse, error) {
	_, resp, ok, err := s.store.LoadPendingMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMessageNotFound
	}
	return &resp, nil
}

// CompleteAsyncTask delivers taskOutput as a background task's result for
// messageID, per §4.7.2's async completion path, and records the
// resulting ChatResponse in the chat's history.
func (s *Service) CompleteAsyncTask(ctx context.Context, messageID string, taskOutput any) (ChatResponse, error) {
	chatID, _, ok, err := s.store.LoadPendingMessage(ctx, messageID)
	if err != nil {
		return ChatResponse{}, err
	}
	if !ok {
		return ChatResponse{}, ErrMessageNotFound
	}

	lock := s.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return ChatResponse{}, err
	}

	outcome, runErr := s.engine.CompleteAsync(ctx, messageID, taskOutput)
	if derr := s.store.DeletePendingMessage(ctx, messageID); derr != nil {
		s.logger.Warn(ctx, "chat: failed to clear pending message", "chatId", chatID, "messageId", messageID, "error", derr)
	}
	session.PendingMessageID = ""

	return s.settleOutcome(ctx, chatID, &session, outcome, runErr)
}

// GetOrCreateSession returns chatID's existing session, or creates one
// owned by userID when none exists yet.
func (s *Service) GetOrCreateSession(ctx context.Context, chatID, userID string) (ChatSession, error) {
	lock := s.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.GetSession(ctx, chatID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return ChatSession{}, err
	}
	return s.store.CreateSession(ctx, ChatSession{ChatID: chatID, UserID: userID, LastMessageTime: time.Now()})
}

// CreateChatSession explicitly creates session. The result for a chatID that
// already exists is up to the Store; the in-memory and Mongo stores return
// the existing session without an error.
func (s *Service) CreateChatSession(ctx context.Context, session ChatSession) (ChatSession, error) {
	lock := s.lockFor(session.ChatID)
	lock.Lock()
	defer lock.Unlock()

	if session.LastMessageTime.IsZero() {
		session.LastMessageTime = time.Now()
	}
	return s.store.CreateSession(ctx, session)
}

// ArchiveChatSession marks chatID archived; archived chats are excluded
// from ListChatsForUser unless explicitly requested.
func (s *Service) ArchiveChatSession(ctx context.Context, chatID string) error {
	lock := s.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.GetSession(ctx, chatID)
	if err != nil {
		return err
	}
	session.Archived = true
	return s.store.SaveSession(ctx, session)
}

// ListChatsForUser returns userID's chat sessions ordered by
// lastMessageTime descending.
func (s *Service) ListChatsForUser(ctx context.Context, userID string, page PageRequest, includeArchived bool) ([]ChatSession, error) {
	return s.store.ListSessionsForUser(ctx, userID, page, includeArchived)
}

// GetChatHistory returns chatID's messages newest-first.
func (s *Service) GetChatHistory(ctx context.Context, chatID string, page PageRequest, includeContext bool) ([]ChatMessage, error) {
	return s.store.ListMessages(ctx, chatID, page, includeContext)
}

// settleOutcome projects outcome into a ChatResponse, updates session's
// run-binding fields, persists both, and appends the response to history.
// Call sites hold chatID's lock.
func (s *Service) settleOutcome(ctx context.Context, chatID string, session *ChatSession, outcome workflow.Outcome, runErr error) (ChatResponse, error) {
	resp := chatResponseFromOutcome(outcome)
	session.LastMessageTime = time.Now()

	if outcome.Status == workflow.StatusSuspended {
		session.PendingMessageID = outcome.MessageID
		if err := s.store.SavePendingMessage(ctx, outcome.MessageID, chatID, resp); err != nil {
			s.logger.Warn(ctx, "chat: failed to persist pending message", "chatId", chatID, "messageId", outcome.MessageID, "error", err)
		}
	} else {
		session.PendingMessageID = ""
	}

	if err := s.store.SaveSession(ctx, *session); err != nil {
		return ChatResponse{}, err
	}
	if err := s.appendMessage(ctx, chatID, MessageTypeAI, nil, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, runErr
}

func (s *Service) appendMessage(ctx context.Context, chatID string, typ MessageType, req *ChatRequest, resp *ChatResponse) error {
	return s.store.AppendMessage(ctx, ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Timestamp: time.Now(),
		Type:      typ,
		Request:   req,
		Response:  resp,
	})
}

// resolveDataNameIDs fills Data for each property that names a DataNameID,
// by scanning chatID's history newest-first for a property whose NameID
// matches, per §4.8's dataNameId resolution rule.
func (s *Service) resolveDataNameIDs(ctx context.Context, chatID string, props []Property) ([]Property, error) {
	needsHistory := false
	for _, p := range props {
		if p.DataNameID != "" {
			needsHistory = true
			break
		}
	}
	if !needsHistory {
		return props, nil
	}

	history, err := s.store.ListMessages(ctx, chatID, PageRequest{}, true)
	if err != nil {
		return nil, err
	}

	resolved := make([]Property, len(props))
	copy(resolved, props)
	for i := range resolved {
		if resolved[i].DataNameID == "" {
			continue
		}
		if v, ok := findPropertyByNameID(history, resolved[i].DataNameID); ok {
			resolved[i].Data = v
		}
	}
	return resolved, nil
}

func findPropertyByNameID(history []ChatMessage, nameID string) (string, bool) {
	for _, msg := range history {
		if msg.Request != nil {
			if v, ok := matchProperty(msg.Request.Properties, nameID); ok {
				return v, true
			}
		}
		if msg.Response != nil {
			if v, ok := matchProperty(msg.Response.Properties, nameID); ok {
				return v, true
			}
		}
	}
	return "", false
}

func matchProperty(props []Property, nameID string) (string, bool) {
	for _, p := range props {
		if p.NameID == nameID {
			return p.Value, true
		}
	}
	return "", false
}

func chatResponseFromOutcome(outcome workflow.Outcome) ChatResponse {
	resp := ChatResponse{
		NextSchema:      outcome.NextSchemaRef,
		PercentComplete: outcome.PercentComplete,
		MessageID:       outcome.MessageID,
		Completed:       outcome.Status == workflow.StatusCompleted,
	}
	switch v := outcome.Result.(type) {
	case nil:
	case string:
		resp.Text = v
	default:
		resp.Text = fmt.Sprintf("%v", v)
	}
	if outcome.Status == workflow.StatusFailed {
		resp.Completed = true
		re := classifyOutcomeErr(outcome.Err)
		resp.Error = re.Kind
		resp.Text = failureMessage(re)
	}
	return resp
}

// classifyOutcomeErr normalizes a FAILED outcome's error into a *RunError so
// callers always get a Kind, even if Engine surfaced a bare error.
func classifyOutcomeErr(err error) *workflow.RunError {
	var re *workflow.RunError
	if errors.As(err, &re) {
		return re
	}
	return workflow.NewRunError(workflow.ErrorKindExecutorError, "", err)
}

// failureMessage extracts the plain human-readable text for a failed run,
// leaving the kind (already on ChatResponse.Error) out of it.
func failureMessage(re *workflow.RunError) string {
	if re.Message != "" {
		return re.Message
	}
	if re.Cause != nil {
		return re.Cause.Error()
	}
	return string(re.Kind)
}
