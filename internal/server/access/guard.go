package access

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

// AccountReader is the subset of the accounts repository the guard needs.
type AccountReader interface {
	Get(ctx context.Context, userID, accountID string) (*models.Account, error)
}

// ProxyReader is the subset of the proxies repository the guard needs.
type ProxyReader interface {
	Get(ctx context.Context, userID, proxyID string) (*models.ProxyConfig, error)
}

// Guard re-reads the owning record before a mutation is applied, even when
// the caller already holds an id. Stale or forged ids fail here.
type Guard struct {
	accounts AccountReader
	proxies  ProxyReader
}

func NewGuard(accounts AccountReader, proxies ProxyReader) *Guard {
	return &Guard{accounts: accounts, proxies: proxies}
}

// Account returns the live account if userID owns it.
func (g *Guard) Account(ctx context.Context, userID, accountID string) (*models.Account, error) {
	if userID == "" || accountID == "" {
		return nil, common.ErrorNotFound
	}
	a, err := g.accounts.Get(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	// repositories already filter by owner; this catches a misbehaving one
	if a.UserID != userID || a.Deleted() {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

// Proxy returns the proxy config if userID owns it.
func (g *Guard) Proxy(ctx context.Context, userID, proxyID string) (*models.ProxyConfig, error) {
	if userID == "" || proxyID == "" {
		return nil, common.ErrorNotFound
	}
	p, err := g.proxies.Get(ctx, userID, proxyID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("proxy %s: %w", proxyID, common.ErrorNotFound)
	}
	return p, nil
}
