package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]models.Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: map[string]models.Session{}}
}

func (r *MemoryRepository) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[s.ID]; ok {
		return common.ErrorConflict
	}
	r.rows[s.ID] = *s
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) Touch(ctx context.Context, id string, at, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	s.LastActivityAt = at
	s.ExpiresAt = expiresAt
	r.rows[id] = s
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rows, id)
	return nil
}

func (r *MemoryRepository) DeleteByAccount(ctx context.Context, accountID string) ([]string, error) {
	return r.deleteWhere(func(s models.Session) bool { return s.AccountID == accountID }), nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	return r.deleteWhere(func(s models.Session) bool { return s.Expired(now) }), nil
}

func (r *MemoryRepository) deleteWhere(match func(models.Session) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, s := range r.rows {
		if match(s) {
			ids = append(ids, id)
			delete(r.rows, id)
		}
	}
	return ids
}
