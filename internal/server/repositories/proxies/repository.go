package proxies

import (
	"context"

	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.ProxyConfig) (*models.ProxyConfig, error)
	Get(ctx context.Context, userID, id string) (*models.ProxyConfig, error)
	List(ctx context.Context, userID string) ([]*models.ProxyConfig, error)
}
