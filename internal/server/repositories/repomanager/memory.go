package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/accountctx/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/proxies"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/storage"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/tabs"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/users"
)

// MemoryRepositoryManager keeps everything in process memory. WithTx
// serializes transactions but cannot roll back a failed one.
type MemoryRepositoryManager struct {
	txMu  sync.Mutex
	repos Repositories
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{repos: Repositories{
		Users:    users.NewMemoryRepository(),
		Accounts: accounts.NewMemoryRepository(),
		Sessions: sessions.NewMemoryRepository(),
		Storage:  storage.NewMemoryRepository(),
		Proxies:  proxies.NewMemoryRepository(),
		Tabs:     tabs.NewMemoryRepository(),
	}}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *MemoryRepositoryManager) Repos() Repositories { return m.repos }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m.repos)
}
