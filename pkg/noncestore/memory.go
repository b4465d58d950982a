package noncestore

import (
	"context"
	"sync"
)

// MemoryStore is a process-local nonce store.
//
// State is lost on restart and entries live until process exit, so it is
// suitable only for single-process deployments and tests. For clustered
// deployments use RedisStore.
type MemoryStore struct {
	mu     sync.Mutex
	nonces map[string]struct{}
}

// NewMemoryStore creates an empty in-memory nonce store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nonces: make(map[string]struct{}),
	}
}

// MarkIfAbsent holds the write lock across the whole read-then-insert
// span, which is what makes the check-and-set atomic.
func (s *MemoryStore) MarkIfAbsent(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nonces[nonce]; exists {
		return false, nil
	}

	s.nonces[nonce] = struct{}{}
	return true, nil
}

// Has reports whether the nonce has been marked.
func (s *MemoryStore) Has(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.nonces[nonce]
	return exists, nil
}

// Remove deletes the nonce record.
func (s *MemoryStore) Remove(_ context.Context, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.nonces, nonce)
	return nil
}

// Len returns the number of marked nonces.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.nonces)
}

var _ Store = (*MemoryStore)(nil)
