package session

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/detailing-booking-widget/internal/widget"
)

type memoryEntry struct {
	state     widget.State
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Expired entries are dropped lazily.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (widget.State, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return widget.State{}, ErrNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if current, ok := s.entries[id]; ok && !s.now().Before(current.expiresAt) {
			delete(s.entries, id)
		}
		s.mu.Unlock()
		return widget.State{}, ErrNotFound
	}
	return entry.state, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, state widget.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = memoryEntry{state: state, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}
