package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

// Repository persists account rows. Every read and mutation except the
// pending-delete sweep is scoped by owner; deleted accounts are invisible to
// Get, List and Update.
type Repository interface {
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	Get(ctx context.Context, userID, id string) (*models.Account, error)
	List(ctx context.Context, userID string) ([]*models.Account, error)
	Update(ctx context.Context, a *models.Account) (*models.Account, error)
	MarkDeleting(ctx context.Context, userID, id string, at time.Time) (*models.Account, error)
	MarkDeleted(ctx context.Context, id string) error
	ListPendingDeletes(ctx context.Context) ([]*models.Account, error)
}
