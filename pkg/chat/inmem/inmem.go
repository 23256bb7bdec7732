// Package inmem provides an in-memory implementation of chat.Store,
// suitable for single-instance deployments and tests.
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/chat"
)

type pendingEntry struct {
	chatID string
	resp   chat.ChatResponse
}

// Store is an in-memory chat.Store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]chat.ChatSession
	messages map[string][]chat.ChatMessage // chatID -> messages, oldest-appended-last in slice append order
	pending  map[string]pendingEntry
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]chat.ChatSession),
		messages: make(map[string][]chat.ChatMessage),
		pending:  make(map[string]pendingEntry),
	}
}

func (s *Store) CreateSession(_ context.Context, session chat.ChatSession) (chat.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.ChatID]; ok {
		return existing, nil
	}
	s.sessions[session.ChatID] = session
	return session, nil
}

func (s *Store) GetSession(_ context.Context, chatID string) (chat.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[chatID]
	if !ok {
		return chat.ChatSession{}, chat.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) SaveSession(_ context.Context, session chat.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ChatID] = session
	return nil
}

func (s *Store) ListSessionsForUser(_ context.Context, userID string, page chat.PageRequest, includeArchived bool) ([]chat.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []chat.ChatSession
	for _, session := range s.sessions {
		if session.UserID != userID {
			continue
		}
		if session.Archived && !includeArchived {
			continue
		}
		matches = append(matches, session)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].LastMessageTime.After(matches[j].LastMessageTime)
	})
	return paginateSessions(matches, page), nil
}

func (s *Store) AppendMessage(_ context.Context, msg chat.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	return nil
}

func (s *Store) ListMessages(_ context.Context, chatID string, page chat.PageRequest, includeContext bool) ([]chat.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[chatID]
	newestFirst := make([]chat.ChatMessage, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if !includeContext && all[i].Type == chat.MessageTypeContext {
			continue
		}
		newestFirst = append(newestFirst, all[i])
	}
	return paginateMessages(newestFirst, page), nil
}

func (s *Store) SavePendingMessage(_ context.Context, messageID, chatID string, resp chat.ChatResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[messageID] = pendingEntry{chatID: chatID, resp: resp}
	return nil
}

func (s *Store) LoadPendingMessage(_ context.Context, messageID string) (string, chat.ChatResponse, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.pending[messageID]
	if !ok {
		return "", chat.ChatResponse{}, false, nil
	}
	return entry.chatID, entry.resp, true, nil
}

func (s *Store) DeletePendingMessage(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, messageID)
	return nil
}

func paginateSessions(items []chat.ChatSession, page chat.PageRequest) []chat.ChatSession {
	if page.Offset >= len(items) {
		return nil
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

func paginateMessages(items []chat.ChatMessage, page chat.PageRequest) []chat.ChatMessage {
	if page.Offset >= len(items) {
		return nil
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}
