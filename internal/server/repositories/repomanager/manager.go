package repomanager

import (
	"context"

	"github.com/dmitrijs2005/accountctx/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/proxies"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/storage"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/tabs"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/users"
)

// Repositories is one consistent set of repositories, bound either to the
// pool or to a single transaction.
type Repositories struct {
	Users    users.Repository
	Accounts accounts.Repository
	Sessions sessions.Repository
	Storage  storage.Repository
	Proxies  proxies.Repository
	Tabs     tabs.Repository
}

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// Repos returns repositories outside of any transaction.
	Repos() Repositories
	// WithTx runs fn with repositories bound to one transaction, committing
	// when fn returns nil.
	WithTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
}
