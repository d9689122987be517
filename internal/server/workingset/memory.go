package workingset

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/accountctx/internal/common"
)

// MemoryStore keeps working sets in process memory. Values are cloned on the
// way in and out so callers never share maps.
type MemoryStore struct {
	mu  sync.RWMutex
	set map[string]*ActiveContext
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{set: map[string]*ActiveContext{}}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*ActiveContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ac, ok := s.set[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return ac.Clone(), nil
}

func (s *MemoryStore) Set(ctx context.Context, ac *ActiveContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set[ac.UserID] = ac.Clone()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.set, userID)
	return nil
}
