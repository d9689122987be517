package proxies

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]models.ProxyConfig
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: map[string]models.ProxyConfig{}}
}

func (r *MemoryRepository) Create(ctx context.Context, p *models.ProxyConfig) (*models.ProxyConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[p.ID]; ok {
		return nil, common.ErrorConflict
	}
	p.CreatedAt = time.Now().UTC()
	r.rows[p.ID] = *p
	return p, nil
}

func (r *MemoryRepository) Get(ctx context.Context, userID, id string) (*models.ProxyConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.rows[id]
	if !ok || p.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) List(ctx context.Context, userID string) ([]*models.ProxyConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.ProxyConfig
	for _, p := range r.rows {
		if p.UserID == userID {
			cp := p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
