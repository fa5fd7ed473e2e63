package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRefreshStore keeps refresh state in process. It is used when Redis is
// not configured and in tests.
type MemoryRefreshStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryRefreshStore) Save(_ context.Context, userID uuid.UUID, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[Key(userID)] = memoryEntry{token: token, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryRefreshStore) Get(_ context.Context, userID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[Key(userID)]
	if !ok || !s.now().Before(e.expiresAt) {
		delete(s.entries, Key(userID))
		return "", ErrNoSession
	}
	return e.token, nil
}

func (s *MemoryRefreshStore) DeleteAll(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(userID)
	for k := range s.entries {
		if k == key || strings.HasPrefix(k, key+":") {
			delete(s.entries, k)
		}
	}
	return nil
}
