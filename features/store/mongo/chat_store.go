package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/chat"
)

const (
	defaultSessionsCollection = "chat_sessions"
	defaultMessagesCollection = "chat_messages"
	defaultPendingCollection  = "chat_pending_messages"
)

// ChatStoreOptions configures a new ChatStore.
type ChatStoreOptions struct {
	Client              *mongodriver.Client
	Database            string
	SessionsCollection  string
	MessagesCollection  string
	PendingCollection   string
	Timeout             time.Duration
}

// ChatStore implements chat.Store over MongoDB.
type ChatStore struct {
	sessions collection
	messages collection
	pending  collection
	timeout  time.Duration
}

// NewChatStore builds a ChatStore and ensures its indexes exist.
func NewChatStore(ctx context.Context, opts ChatStoreOptions) (*ChatStore, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	sessionsName := opts.SessionsCollection
	if sessionsName == "" {
		sessionsName = defaultSessionsCollection
	}
	messagesName := opts.MessagesCollection
	if messagesName == "" {
		messagesName = defaultMessagesCollection
	}
	pendingName := opts.PendingCollection
	if pendingName == "" {
		pendingName = defaultPendingCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := newChatStore(newCollection(db, sessionsName), newCollection(db, messagesName), newCollection(db, pendingName), timeout)
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newChatStore(sessions, messages, pending collection, timeout time.Duration) *ChatStore {
	return &ChatStore{sessions: sessions, messages: messages, pending: pending, timeout: timeout}
}

func (s *ChatStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.sessions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.sessions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	}); err != nil {
		return err
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "timestamp", Value: -1}},
	}); err != nil {
		return err
	}
	if _, err := s.pending.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	return nil
}

type sessionDocument struct {
	ChatID           string            `bson:"chat_id"`
	UserID           string            `bson:"user_id"`
	Name             string            `bson:"name,omitempty"`
	Language         string            `bson:"language,omitempty"`
	SystemMessage    string            `bson:"system_message,omitempty"`
	MemoryLength     int               `bson:"memory_length,omitempty"`
	Archived         bool              `bson:"archived"`
	LastMessageTime  time.Time         `bson:"last_message_time"`
	Labels           map[string]string `bson:"labels,omitempty"`
	WorkflowID       string            `bson:"workflow_id,omitempty"`
	InstanceID       string            `bson:"instance_id,omitempty"`
	PendingMessageID string            `bson:"pending_message_id,omitempty"`
}

func fromSession(s chat.ChatSession) sessionDocument {
	return sessionDocument{
		ChatID:           s.ChatID,
		UserID:           s.UserID,
		Name:             s.Name,
		Language:         s.Language,
		SystemMessage:    s.SystemMessage,
		MemoryLength:     s.MemoryLength,
		Archived:         s.Archived,
		LastMessageTime:  s.LastMessageTime,
		Labels:           s.Labels,
		WorkflowID:       s.WorkflowID,
		InstanceID:       s.InstanceID,
		PendingMessageID: s.PendingMessageID,
	}
}

func (d sessionDocument) toSession() chat.ChatSession {
	return chat.ChatSession{
		ChatID:           d.ChatID,
		UserID:           d.UserID,
		Name:             d.Name,
		Language:         d.Language,
		SystemMessage:    d.SystemMessage,
		MemoryLength:     d.MemoryLength,
		Archived:         d.Archived,
		LastMessageTime:  d.LastMessageTime,
		Labels:           d.Labels,
		WorkflowID:       d.WorkflowID,
		InstanceID:       d.InstanceID,
		PendingMessageID: d.PendingMessageID,
	}
}

// CreateSession inserts session if chatID does not already exist,
// returning the existing session otherwise (idempotent-create, matching
// the teacher's session store behavior).
func (s *ChatStore) CreateSession(ctx context.Context, session chat.ChatSession) (chat.ChatSession, error) {
	if session.ChatID == "" {
		return chat.ChatSession{}, errors.New("mongo: chat id is required")
	}
	existing, err := s.GetSession(ctx, session.ChatID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, chat.ErrSessionNotFound) {
		return chat.ChatSession{}, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	doc := fromSession(session)
	filter := bson.M{"chat_id": doc.ChatID}
	update := bson.M{"$setOnInsert": doc}
	if _, err := s.sessions.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return chat.ChatSession{}, err
	}
	return s.GetSession(ctx, session.ChatID)
}

func (s *ChatStore) GetSession(ctx context.Context, chatID string) (chat.ChatSession, error) {
	if chatID == "" {
		return chat.ChatSession{}, errors.New("mongo: chat id is required")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	var doc sessionDocument
	if err := s.sessions.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return chat.ChatSession{}, chat.ErrSessionNotFound
		}
		return chat.ChatSession{}, err
	}
	return doc.toSession(), nil
}

func (s *ChatStore) SaveSession(ctx context.Context, session chat.ChatSession) error {
	if session.ChatID == "" {
		return errors.New("mongo: chat id is required")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	doc := fromSession(session)
	_, err := s.sessions.UpdateOne(ctx, bson.M{"chat_id": doc.ChatID}, bson.M{"$set": doc}, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *ChatStore) ListSessionsForUser(ctx context.Context, userID string, page chat.PageRequest, includeArchived bool) ([]chat.ChatSession, error) {
	if userID == "" {
		return nil, errors.New("mongo: user id is required")
	}
	filter := bson.M{"user_id": userID}
	if !includeArchived {
		filter["archived"] = false
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "last_message_time", Value: -1}})
	applyPage(opts, page)
	cur, err := s.sessions.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []chat.ChatSession
	for cur.Next(ctx) {
		var doc sessionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toSession())
	}
	return out, cur.Err()
}

type propertyDocument struct {
	Name        string `bson:"name,omitempty"`
	NameID      string `bson:"name_id,omitempty"`
	Value       string `bson:"value,omitempty"`
	Type        string `bson:"type,omitempty"`
	MultiSelect bool   `bson:"multi_select,omitempty"`
	DataNameID  string `bson:"data_name_id,omitempty"`
	Data        any    `bson:"data,omitempty"`
}

func fromProperties(props []chat.Property) []propertyDocument {
	if len(props) == 0 {
		return nil
	}
	out := make([]propertyDocument, len(props))
	for i, p := range props {
		out[i] = propertyDocument{Name: p.Name, NameID: p.NameID, Value: p.Value, Type: p.Type, MultiSelect: p.MultiSelect, DataNameID: p.DataNameID, Data: p.Data}
	}
	return out
}

func (d propertyDocument) toProperty() chat.Property {
	return chat.Property{Name: d.Name, NameID: d.NameID, Value: d.Value, Type: d.Type, MultiSelect: d.MultiSelect, DataNameID: d.DataNameID, Data: d.Data}
}

type requestDocument struct {
	WorkflowID        string             `bson:"workflow_id,omitempty"`
	RequestSchemaName string             `bson:"request_schema_name,omitempty"`
	Properties        []propertyDocument `bson:"properties,omitempty"`
	Language          string             `bson:"language,omitempty"`
}

type responseDocument struct {
	Text            string             `bson:"text,omitempty"`
	Properties      []propertyDocument `bson:"properties,omitempty"`
	NextSchema      string             `bson:"next_schema,omitempty"`
	Completed       bool               `bson:"completed"`
	PercentComplete int                `bson:"percent_complete"`
	MessageID       string             `bson:"message_id,omitempty"`
}

func fromResponse(r chat.ChatResponse) responseDocument {
	return responseDocument{
		Text:            r.Text,
		Properties:      fromProperties(r.Properties),
		NextSchema:      r.NextSchema,
		Completed:       r.Completed,
		PercentComplete: r.PercentComplete,
		MessageID:       r.MessageID,
	}
}

func (d responseDocument) toResponse() chat.ChatResponse {
	props := make([]chat.Property, len(d.Properties))
	for i, p := range d.Properties {
		props[i] = p.toProperty()
	}
	return chat.ChatResponse{Text: d.Text, Properties: props, NextSchema: d.NextSchema, Completed: d.Completed, PercentComplete: d.PercentComplete, MessageID: d.MessageID}
}

type messageDocument struct {
	ID        string            `bson:"message_id"`
	ChatID    string            `bson:"chat_id"`
	Timestamp time.Time         `bson:"timestamp"`
	Type      chat.MessageType  `bson:"type"`
	Request   *requestDocument  `bson:"request,omitempty"`
	Response  *responseDocument `bson:"response,omitempty"`
}

func (s *ChatStore) AppendMessage(ctx context.Context, msg chat.ChatMessage) error {
	if msg.ID == "" || msg.ChatID == "" {
		return errors.New("mongo: message id and chat id are required")
	}
	doc := messageDocument{ID: msg.ID, ChatID: msg.ChatID, Timestamp: msg.Timestamp, Type: msg.Type}
	if msg.Request != nil {
		rd := requestDocument{WorkflowID: msg.Request.WorkflowID, RequestSchemaName: msg.Request.RequestSchemaName, Properties: fromProperties(msg.Request.Properties), Language: msg.Request.Language}
		doc.Request = &rd
	}
	if msg.Response != nil {
		rd := fromResponse(*msg.Response)
		doc.Response = &rd
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.messages.InsertOne(ctx, doc)
	return err
}

func (s *ChatStore) ListMessages(ctx context.Context, chatID string, page chat.PageRequest, includeContext bool) ([]chat.ChatMessage, error) {
	if chatID == "" {
		return nil, errors.New("mongo: chat id is required")
	}
	filter := bson.M{"chat_id": chatID}
	if !includeContext {
		filter["type"] = bson.M{"$ne": chat.MessageTypeContext}
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	applyPage(opts, page)
	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []chat.ChatMessage
	for cur.Next(ctx) {
		var doc messageDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		m := chat.ChatMessage{ID: doc.ID, ChatID: doc.ChatID, Timestamp: doc.Timestamp, Type: doc.Type}
		if doc.Request != nil {
			props := make([]chat.Property, len(doc.Request.Properties))
			for i, p := range doc.Request.Properties {
				props[i] = p.toProperty()
			}
			m.Request = &chat.ChatRequest{WorkflowID: doc.Request.WorkflowID, RequestSchemaName: doc.Request.RequestSchemaName, Properties: props, Language: doc.Request.Language}
		}
		if doc.Response != nil {
			resp := doc.Response.toResponse()
			m.Response = &resp
		}
		out = append(out, m)
	}
	return out, cur.Err()
}

type pendingDocument struct {
	MessageID string           `bson:"message_id"`
	ChatID    string           `bson:"chat_id"`
	Response  responseDocument `bson:"response"`
}

func (s *ChatStore) SavePendingMessage(ctx context.Context, messageID, chatID string, resp chat.ChatResponse) error {
	if messageID == "" || chatID == "" {
		return errors.New("mongo: message id and chat id are required")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	doc := pendingDocument{MessageID: messageID, ChatID: chatID, Response: fromResponse(resp)}
	_, err := s.pending.UpdateOne(ctx, bson.M{"message_id": messageID}, bson.M{"$set": doc}, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *ChatStore) LoadPendingMessage(ctx context.Context, messageID string) (string, chat.ChatResponse, bool, error) {
	if messageID == "" {
		return "", chat.ChatResponse{}, false, errors.New("mongo: message id is required")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	var doc pendingDocument
	if err := s.pending.FindOne(ctx, bson.M{"message_id": messageID}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return "", chat.ChatResponse{}, false, nil
		}
		return "", chat.ChatResponse{}, false, err
	}
	return doc.ChatID, doc.Response.toResponse(), true, nil
}

func (s *ChatStore) DeletePendingMessage(ctx context.Context, messageID string) error {
	if messageID == "" {
		return errors.New("mongo: message id is required")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.pending.DeleteOne(ctx, bson.M{"message_id": messageID})
	return err
}

func applyPage(opts *options.FindOptionsBuilder, page chat.PageRequest) {
	if page.Offset > 0 {
		opts.SetSkip(int64(page.Offset))
	}
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
}

var _ chat.Store = (*ChatStore)(nil)
