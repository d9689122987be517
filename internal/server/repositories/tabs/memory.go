package tabs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]models.Tab
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: map[string]models.Tab{}}
}

func (r *MemoryRepository) Create(ctx context.Context, t *models.Tab) (*models.Tab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.CreatedAt = time.Now().UTC()
	r.rows[t.ID] = *t
	return t, nil
}

func (r *MemoryRepository) List(ctx context.Context, scope access.Scope) ([]*models.Tab, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Tab
	for _, t := range r.rows {
		if scope.Allows(t.UserID, &t.AccountID) {
			cp := t
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, scope access.Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.rows[id]
	if !ok || !scope.Allows(t.UserID, &t.AccountID) {
		return common.ErrorNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *MemoryRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.rows {
		if t.AccountID == accountID {
			delete(r.rows, id)
		}
	}
	return nil
}
