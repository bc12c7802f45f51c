package diagnoses

import (
	"context"
	"sync"
)

// MemoryStore keeps the history in memory and is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	history History
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored history.
func (s *MemoryStore) Load(ctx context.Context) (History, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(History, len(s.history))
	copy(out, s.history)
	return out, nil
}

// Save replaces the stored history with a copy of h.
func (s *MemoryStore) Save(ctx context.Context, h History) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make(History, len(h))
	copy(s.history, h)
	return nil
}

var _ HistoryStore = (*MemoryStore)(nil)
