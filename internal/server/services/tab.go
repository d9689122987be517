package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TabService manages open tabs. Each call re-verifies account ownership
// through the guard before touching the tabs table.
type TabService struct {
	repomanager repomanager.RepositoryManager
	guard       *access.Guard
}

func NewTabService(m repomanager.RepositoryManager, guard *access.Guard) *TabService {
	return &TabService{repomanager: m, guard: guard}
}

func (s *TabService) Open(ctx context.Context, userID, accountID, rawURL, title string, position int) (*models.Tab, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, common.ErrorValidation)
	}
	if position < 0 {
		return nil, fmt.Errorf("negative position: %w", common.ErrorValidation)
	}
	if _, err := s.guard.Account(ctx, userID, accountID); err != nil {
		return nil, err
	}

	return s.repomanager.Repos().Tabs.Create(ctx, &models.Tab{
		ID:        uuid.NewString(),
		UserID:    userID,
		AccountID: accountID,
		URL:       u.String(),
		Title:     title,
		Position:  position,
	})
}

func (s *TabService) List(ctx context.Context, userID, accountID string) ([]*models.Tab, error) {
	if _, err := s.guard.Account(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.repomanager.Repos().Tabs.List(ctx, access.Scope{UserID: userID, AccountID: accountID})
}

func (s *TabService) Close(ctx context.Context, userID, accountID, tabID string) error {
	if _, err := s.guard.Account(ctx, userID, accountID); err != nil {
		return err
	}
	return s.repomanager.Repos().Tabs.Delete(ctx, access.Scope{UserID: userID, AccountID: accountID}, tabID)
}
