package tabs

import (
	"context"

	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.Tab) (*models.Tab, error)
	List(ctx context.Context, scope access.Scope) ([]*models.Tab, error)
	Delete(ctx context.Context, scope access.Scope, id string) error
	DeleteByAccount(ctx context.Context, accountID string) error
}
