package storage

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

// Repository persists storage entries keyed by (namespace, kind, key).
// Reads and bulk deletes run under an access.Scope; an empty kinds slice
// means every kind.
type Repository interface {
	Upsert(ctx context.Context, e *models.StorageEntry) error
	List(ctx context.Context, scope access.Scope, namespace string, kinds []models.EntryKind, now time.Time) ([]*models.StorageEntry, error)
	// DeleteByNamespace returns the blob keys of the removed rows so the
	// caller can drop the offloaded payloads.
	DeleteByNamespace(ctx context.Context, scope access.Scope, namespace string, kinds []models.EntryKind) ([]string, error)
	DeleteBySession(ctx context.Context, sessionID string) ([]string, error)
}

func kindsOrAll(kinds []models.EntryKind) []models.EntryKind {
	if len(kinds) == 0 {
		return models.AllKinds
	}
	return kinds
}
