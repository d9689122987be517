package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Touch(ctx context.Context, id string, at, expiresAt time.Time) error
	// Delete is idempotent: deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteByAccount removes every session bound to the account and returns
	// their ids.
	DeleteByAccount(ctx context.Context, accountID string) ([]string, error)
	// DeleteExpired removes sessions whose expiry is at or before now and
	// returns their ids.
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
}
