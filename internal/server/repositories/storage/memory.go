package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

type rowKey struct {
	namespace string
	kind      models.EntryKind
	key       string
}

type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[rowKey]models.StorageEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: map[rowKey]models.StorageEntry{}}
}

func (r *MemoryRepository) Upsert(ctx context.Context, e *models.StorageEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := rowKey{e.Namespace, e.Kind, e.Key}
	if cur, ok := r.rows[k]; ok && cur.UserID != e.UserID {
		return fmt.Errorf("unexpected rows affected: 0")
	}
	cp := *e
	cp.EncryptedValue = append([]byte(nil), e.EncryptedValue...)
	r.rows[k] = cp
	return nil
}

func visible(scope access.Scope, e *models.StorageEntry, namespace string, kinds []models.EntryKind) bool {
	var acc *string
	if e.AccountID != "" {
		acc = &e.AccountID
	}
	return e.Namespace == namespace && slices.Contains(kinds, e.Kind) && scope.Allows(e.UserID, acc)
}

func (r *MemoryRepository) List(ctx context.Context, scope access.Scope, namespace string, kinds []models.EntryKind, now time.Time) ([]*models.StorageEntry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	kinds = kindsOrAll(kinds)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.StorageEntry
	for _, e := range r.rows {
		if !visible(scope, &e, namespace, kinds) {
			continue
		}
		if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
			continue
		}
		cp := e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Kind != result[j].Kind {
			return result[i].Kind < result[j].Kind
		}
		return result[i].Key < result[j].Key
	})
	return result, nil
}

func (r *MemoryRepository) DeleteByNamespace(ctx context.Context, scope access.Scope, namespace string, kinds []models.EntryKind) ([]string, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	kinds = kindsOrAll(kinds)
	return r.deleteWhere(func(e *models.StorageEntry) bool { return visible(scope, e, namespace, kinds) }), nil
}

func (r *MemoryRepository) DeleteBySession(ctx context.Context, sessionID string) ([]string, error) {
	return r.deleteWhere(func(e *models.StorageEntry) bool {
		return e.SessionID != nil && *e.SessionID == sessionID
	}), nil
}

func (r *MemoryRepository) deleteWhere(match func(*models.StorageEntry) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var blobs []string
	for k, e := range r.rows {
		if match(&e) {
			if e.BlobKey != nil {
				blobs = append(blobs, *e.BlobKey)
			}
			delete(r.rows, k)
		}
	}
	return blobs
}
