package registry

import (
	"context"
	"sync"
)

// MemoryStore is an in-process ThreadStore. Mappings do not survive a
// restart; production deployments use the JetStream bucket store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

// Put records the thread id for a session.
func (s *MemoryStore) Put(ctx context.Context, sessionID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sessionID] = threadID
	return nil
}

// Get returns the recorded thread id, or ErrNoThread.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threadID, ok := s.m[sessionID]
	if !ok {
		return "", ErrNoThread
	}
	return threadID, nil
}
