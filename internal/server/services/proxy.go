package services

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

var proxyKinds = map[string]bool{"http": true, "socks5": true, "v2ray": true}

// ProxyService stores proxy configurations. Only their ids matter to the
// account context; the transports that use them live elsewhere.
type ProxyService struct {
	repomanager repomanager.RepositoryManager
}

func NewProxyService(m repomanager.RepositoryManager) *ProxyService {
	return &ProxyService{repomanager: m}
}

func (s *ProxyService) Create(ctx context.Context, userID, kind, address string) (*models.ProxyConfig, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if !proxyKinds[kind] {
		return nil, fmt.Errorf("unknown proxy kind %q: %w", kind, common.ErrorValidation)
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, fmt.Errorf("address must be host:port: %w", common.ErrorValidation)
	}

	return s.repomanager.Repos().Proxies.Create(ctx, &models.ProxyConfig{
		ID:      uuid.NewString(),
		UserID:  userID,
		Kind:    kind,
		Address: address,
	})
}

func (s *ProxyService) List(ctx context.Context, userID string) ([]*models.ProxyConfig, error) {
	return s.repomanager.Repos().Proxies.List(ctx, userID)
}
