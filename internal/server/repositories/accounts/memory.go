package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

// MemoryRepository is the in-process twin of PostgresRepository. Tombstones
// are kept so namespaces stay unique for the life of the process.
type MemoryRepository struct {
	mu         sync.RWMutex
	rows       map[string]*models.Account
	namespaces map[string]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: map[string]*models.Account{}, namespaces: map[string]struct{}{}}
}

func clone(a *models.Account) *models.Account {
	c := *a
	c.EncryptedName = append([]byte(nil), a.EncryptedName...)
	c.EncryptedDescription = append([]byte(nil), a.EncryptedDescription...)
	if a.ProxyConfigID != nil {
		p := *a.ProxyConfigID
		c.ProxyConfigID = &p
	}
	if a.DeletedAt != nil {
		d := *a.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

func (r *MemoryRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[a.ID]; ok {
		return nil, common.ErrorConflict
	}
	if _, ok := r.namespaces[a.Namespace]; ok {
		return nil, common.ErrorConflict
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	row := clone(a)
	row.Name, row.Description = "", ""
	r.rows[a.ID] = row
	r.namespaces[a.Namespace] = struct{}{}
	return a, nil
}

func (r *MemoryRepository) Get(ctx context.Context, userID, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.rows[id]
	if !ok || a.UserID != userID || a.Deleted() {
		return nil, common.ErrorNotFound
	}
	return clone(a), nil
}

func (r *MemoryRepository) List(ctx context.Context, userID string) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Account
	for _, a := range r.rows {
		if a.UserID == userID && !a.Deleted() {
			result = append(result, clone(a))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *MemoryRepository) Update(ctx context.Context, a *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.rows[a.ID]
	if !ok || cur.UserID != a.UserID || cur.Deleted() {
		return nil, common.ErrorNotFound
	}
	cur.EncryptedName = append([]byte(nil), a.EncryptedName...)
	cur.EncryptedDescription = append([]byte(nil), a.EncryptedDescription...)
	cur.Protected = a.Protected
	cur.ProxyConfigID = nil
	if a.ProxyConfigID != nil {
		p := *a.ProxyConfigID
		cur.ProxyConfigID = &p
	}
	cur.UpdatedAt = time.Now().UTC()
	a.UpdatedAt = cur.UpdatedAt
	return a, nil
}

func (r *MemoryRepository) MarkDeleting(ctx context.Context, userID, id string, at time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok || a.UserID != userID || a.Deleted() {
		return nil, common.ErrorNotFound
	}
	a.DeletedAt = &at
	a.DeleteState = models.DeleteStatePending
	a.UpdatedAt = at
	return clone(a), nil
}

func (r *MemoryRepository) MarkDeleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok || a.DeleteState != models.DeleteStatePending {
		return common.ErrorNotFound
	}
	a.DeleteState = models.DeleteStateDone
	return nil
}

func (r *MemoryRepository) ListPendingDeletes(ctx context.Context) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Account
	for _, a := range r.rows {
		if a.DeleteState == models.DeleteStatePending {
			result = append(result, clone(a))
		}
	}
	return result, nil
}
