package prompt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InmemStore implements Store in memory with no durability, grounded on the
// teacher's copy-on-write registry store pattern. All operations are
// thread-safe via a single mutex; stored records are defensively copied on
// read and write.
type InmemStore struct {
	mu       sync.RWMutex
	versions map[string][]*Prompt // key: method + "\x00" + language, newest-appended-last
	now      func() time.Time
}

// NewInmemStore constructs an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		versions: make(map[string][]*Prompt),
		now:      time.Now,
	}
}

func key(method, language string) string { return method + "\x00" + language }

func (s *InmemStore) Current(_ context.Context, method, language string) (*Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.versions[key(method, language)] {
		if p.State == StateCurrent {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InmemStore) Save(_ context.Context, p *Prompt) (*Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(p.Method, p.Language)
	list := s.versions[k]
	now := s.now()

	for _, existing := range list {
		if existing.State != StateCurrent {
			continue
		}
		if existing.Message == p.Message {
			// Idempotent save: identical text keeps the same id and state.
			existing.UpdatedTime = now
			cp := *existing
			return &cp, nil
		}
		existing.State = StateReplaced
		existing.UpdatedTime = now
	}

	saved := *p
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	saved.State = StateCurrent
	if saved.CreatedTime.IsZero() {
		saved.CreatedTime = now
	}
	saved.UpdatedTime = now
	s.versions[k] = append(list, &saved)

	cp := saved
	return &cp, nil
}

func (s *InmemStore) History(_ context.Context, method, language string) ([]*Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.versions[key(method, language)]
	out := make([]*Prompt, len(list))
	for i, p := range list {
		cp := *p
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTime.After(out[j].CreatedTime) })
	return out, nil
}
