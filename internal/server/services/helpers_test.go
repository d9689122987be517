package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/cryptox"
	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/config"
	"github.com/dmitrijs2005/accountctx/internal/server/lock"
	"github.com/dmitrijs2005/accountctx/internal/server/metrics"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/tabs"
	"github.com/dmitrijs2005/accountctx/internal/server/storagectx"
	"github.com/dmitrijs2005/accountctx/internal/server/workingset"
	"github.com/stretchr/testify/require"
)

var errTabsDown = errors.New("tabs down")

// flakyTabs fails DeleteByAccount while fail is set.
type flakyTabs struct {
	tabs.Repository
	fail atomic.Bool
}

func (f *flakyTabs) DeleteByAccount(ctx context.Context, accountID string) error {
	if f.fail.Load() {
		return errTabsDown
	}
	return f.Repository.DeleteByAccount(ctx, accountID)
}

type flakyManager struct {
	*repomanager.MemoryRepositoryManager
	tabs *flakyTabs
}

func (m *flakyManager) Repos() repomanager.Repositories {
	r := m.MemoryRepositoryManager.Repos()
	r.Tabs = m.tabs
	return r
}

func (m *flakyManager) WithTx(ctx context.Context, fn func(ctx context.Context, r repomanager.Repositories) error) error {
	return m.MemoryRepositoryManager.WithTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		r.Tabs = m.tabs
		return fn(ctx, r)
	})
}

type env struct {
	cfg      *config.Config
	repos    *flakyManager
	tabs     *flakyTabs
	keys     *cryptox.KeyService
	codec    *cryptox.Codec
	metrics  *metrics.Metrics
	store    *storagectx.Store
	active   *workingset.MemoryStore
	guard    *access.Guard
	users    *UserService
	accounts *AccountService
	sessions *SessionService
	tabSvc   *TabService
	proxies  *ProxyService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()

	mem := repomanager.NewMemoryRepositoryManager()
	ft := &flakyTabs{Repository: mem.Repos().Tabs}
	rm := &flakyManager{MemoryRepositoryManager: mem, tabs: ft}

	ec := cryptox.DefaultEncryptionConfig
	keys := cryptox.NewKeyService([]byte("0123456789abcdef0123456789abcdef"), 1000, ec)
	codec := cryptox.NewCodec(ec)
	mt := metrics.New(nil)
	log := logging.NopLogger{}
	store := storagectx.NewStore(rm, keys, codec, mt, log, storagectx.Options{})
	active := workingset.NewMemoryStore()
	guard := access.NewGuard(rm.Repos().Accounts, rm.Repos().Proxies)

	return &env{
		cfg:      cfg,
		repos:    rm,
		tabs:     ft,
		keys:     keys,
		codec:    codec,
		metrics:  mt,
		store:    store,
		active:   active,
		guard:    guard,
		users:    NewUserService(rm, guard, cfg),
		accounts: NewAccountService(rm, guard, keys, codec, store, active, lock.NewLocal(), mt, log),
		sessions: NewSessionService(rm, store, time.Hour, mt, log),
		tabSvc:   NewTabService(rm, guard),
		proxies:  NewProxyService(rm),
	}
}

func (e *env) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), name, []byte("salt"), []byte("verifier-"+name))
	require.NoError(t, err)
	return u
}
