// Package api is the transport-neutral surface of the server. The gRPC and
// HTTP layers authenticate the caller, decode a request, call one method
// here and encode the result.
package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/cryptox"
	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/blobstore"
	"github.com/dmitrijs2005/accountctx/internal/server/config"
	"github.com/dmitrijs2005/accountctx/internal/server/lock"
	"github.com/dmitrijs2005/accountctx/internal/server/metrics"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountctx/internal/server/services"
	"github.com/dmitrijs2005/accountctx/internal/server/storagectx"
	"github.com/dmitrijs2005/accountctx/internal/server/switcher"
	"github.com/dmitrijs2005/accountctx/internal/server/workingset"
)

// Caller identifies who is making an authenticated call.
type Caller struct {
	UserID    string
	SessionID string
	Client    models.ClientMeta
}

// Components are the backends a Service is assembled from. Blobs may be
// nil.
type Components struct {
	Config  *config.Config
	Repos   repomanager.RepositoryManager
	Active  workingset.Store
	Locker  lock.Locker
	Blobs   blobstore.Store
	Keys    *cryptox.KeyService
	Codec   *cryptox.Codec
	Metrics *metrics.Metrics
	Log     logging.Logger
}

type Service struct {
	users    *services.UserService
	accounts *services.AccountService
	sessions *services.SessionService
	tabs     *services.TabService
	proxies  *services.ProxyService
	storage  *storagectx.Service
	switcher *switcher.Coordinator
}

// Build wires every service over c.
func Build(c Components) *Service {
	cfg := c.Config
	guard := access.NewGuard(c.Repos.Repos().Accounts, c.Repos.Repos().Proxies)
	store := storagectx.NewStore(c.Repos, c.Keys, c.Codec, c.Metrics, c.Log,
		storagectx.Options{Blobs: c.Blobs, BlobThreshold: cfg.BlobThreshold})

	users := services.NewUserService(c.Repos, guard, cfg)
	sessions := services.NewSessionService(c.Repos, store, cfg.SessionTTL, c.Metrics, c.Log)

	return &Service{
		users:    users,
		accounts: services.NewAccountService(c.Repos, guard, c.Keys, c.Codec, store, c.Active, c.Locker, c.Metrics, c.Log),
		sessions: sessions,
		tabs:     services.NewTabService(c.Repos, guard),
		proxies:  services.NewProxyService(c.Repos),
		storage:  storagectx.NewService(c.Active, c.Locker, store, sessions),
		switcher: switcher.NewCoordinator(guard, users, sessions, store, c.Active, c.Locker, c.Metrics, c.Log,
			switcher.Options{LoadAttempts: cfg.LoadRetryAttempts, LoadBackoff: cfg.LoadRetryBackoff}),
	}
}

// Sessions exposes the session service for the background sweeper.
func (s *Service) Sessions() *services.SessionService { return s.sessions }

// Accounts exposes the account service for the pending-delete sweeper.
func (s *Service) Accounts() *services.AccountService { return s.accounts }

// AccessUserID resolves an access token to its user id.
func (s *Service) AccessUserID(token string) (string, error) {
	return s.users.UserIDFromToken(token)
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required: %w", field, common.ErrorValidation)
	}
	return nil
}

// --- users ---

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	u, err := s.users.Register(ctx, req.Username, req.Salt, req.Verifier)
	if err != nil {
		return nil, err
	}
	return &RegisterResponse{UserID: u.ID}, nil
}

func (s *Service) GetSalt(ctx context.Context, req *GetSaltRequest) (*GetSaltResponse, error) {
	if err := required("username", req.Username); err != nil {
		return nil, err
	}
	salt, err := s.users.GetSalt(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	return &GetSaltResponse{Salt: salt}, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, token, err := s.users.Login(ctx, req.Username, req.Verifier)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{UserID: u.ID, AccessToken: token}, nil
}

// Logout saves and deactivates the active account and ends the caller's
// session.
func (s *Service) Logout(ctx context.Context, c Caller, _ *Empty) (*Empty, error) {
	if err := s.switcher.Deactivate(ctx, c.UserID); err != nil {
		return nil, err
	}
	if err := s.sessions.Destroy(ctx, c.SessionID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// --- accounts ---

func toAccount(a *models.Account) Account {
	return Account{
		ID:            a.ID,
		Name:          a.Name,
		Description:   a.Description,
		Protected:     a.Protected,
		ProxyConfigID: a.ProxyConfigID,
		Namespace:     a.Namespace,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (s *Service) CreateAccount(ctx context.Context, c Caller, req *CreateAccountRequest) (*Account, error) {
	a, err := s.accounts.Create(ctx, c.UserID, req.Name, req.Description, req.ProxyConfigID)
	if err != nil {
		return nil, err
	}
	res := toAccount(a)
	return &res, nil
}

func (s *Service) ListAccounts(ctx context.Context, c Caller, req *ListAccountsRequest) (*ListAccountsResponse, error) {
	opts := services.ListOptions{SortBy: req.SortBy, Order: req.Order}
	if req.Filter != nil {
		opts.Filter = services.AccountFilter{Query: req.Filter.Query, Protected: req.Filter.Protected}
	}
	list, err := s.accounts.List(ctx, c.UserID, opts)
	if err != nil {
		return nil, err
	}
	res := &ListAccountsResponse{Accounts: make([]Account, 0, len(list))}
	for _, a := range list {
		res.Accounts = append(res.Accounts, toAccount(a))
	}
	return res, nil
}

func (s *Service) GetAccount(ctx context.Context, c Caller, req *AccountRequest) (*Account, error) {
	a, err := s.accounts.Get(ctx, c.UserID, req.AccountID)
	if err != nil {
		return nil, err
	}
	res := toAccount(a)
	return &res, nil
}

func (s *Service) UpdateAccount(ctx context.Context, c Caller, req *UpdateAccountRequest) (*Account, error) {
	if err := required("account_id", req.AccountID); err != nil {
		return nil, err
	}
	patch := models.AccountPatch{
		Name:          req.Name,
		Description:   req.Description,
		Protected:     req.Protected,
		ProxyConfigID: req.ProxyConfigID,
		ClearProxy:    req.ClearProxy,
	}
	a, err := s.accounts.Update(ctx, c.UserID, req.AccountID, patch)
	if err != nil {
		return nil, err
	}
	res := toAccount(a)
	return &res, nil
}

func (s *Service) UnlockAccount(ctx context.Context, c Caller, req *UnlockAccountRequest) (*UnlockAccountResponse, error) {
	token, err := s.users.Unlock(ctx, c.UserID, req.AccountID, req.Verifier)
	if err != nil {
		return nil, err
	}
	return &UnlockAccountResponse{VerificationToken: token}, nil
}

func (s *Service) SwitchAccount(ctx context.Context, c Caller, req *SwitchAccountRequest) (*SwitchAccountResponse, error) {
	if err := required("account_id", req.AccountID); err != nil {
		return nil, err
	}
	res, err := s.switcher.Switch(ctx, switcher.Request{
		UserID:            c.UserID,
		AccountID:         req.AccountID,
		VerificationToken: req.VerificationToken,
		Client:            c.Client,
	})
	if err != nil {
		return nil, err
	}
	return &SwitchAccountResponse{
		Success:       true,
		AccountID:     res.AccountID,
		SessionID:     res.SessionID,
		Namespace:     res.Namespace,
		ProxyConfigID: res.ProxyConfigID,
	}, nil
}

// DeleteAccount requires an explicit confirmation; without it nothing is
// touched.
func (s *Service) DeleteAccount(ctx context.Context, c Caller, req *DeleteAccountRequest) (*Empty, error) {
	if err := required("account_id", req.AccountID); err != nil {
		return nil, err
	}
	if !req.Confirm {
		return nil, fmt.Errorf("confirm must be true: %w", common.ErrorValidation)
	}
	if err := s.accounts.Delete(ctx, c.UserID, req.AccountID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *Service) AssignProxy(ctx context.Context, c Caller, req *AssignProxyRequest) (*Account, error) {
	if err := required("account_id", req.AccountID); err != nil {
		return nil, err
	}
	a, err := s.accounts.AssignProxy(ctx, c.UserID, req.AccountID, req.ProxyConfigID)
	if err != nil {
		return nil, err
	}
	res := toAccount(a)
	return &res, nil
}

// --- proxies ---

func toProxy(p *models.ProxyConfig) Proxy {
	return Proxy{ID: p.ID, Kind: p.Kind, Address: p.Address, CreatedAt: p.CreatedAt}
}

func (s *Service) CreateProxy(ctx context.Context, c Caller, req *CreateProxyRequest) (*Proxy, error) {
	p, err := s.proxies.Create(ctx, c.UserID, req.Kind, req.Address)
	if err != nil {
		return nil, err
	}
	res := toProxy(p)
	return &res, nil
}

func (s *Service) ListProxies(ctx context.Context, c Caller, _ *Empty) (*ListProxiesResponse, error) {
	list, err := s.proxies.List(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	res := &ListProxiesResponse{Proxies: make([]Proxy, 0, len(list))}
	for _, p := range list {
		res.Proxies = append(res.Proxies, toProxy(p))
	}
	return res, nil
}

// --- tabs ---

func toTab(t *models.Tab) Tab {
	return Tab{ID: t.ID, AccountID: t.AccountID, URL: t.URL, Title: t.Title, Position: t.Position, CreatedAt: t.CreatedAt}
}

func (s *Service) OpenTab(ctx context.Context, c Caller, req *OpenTabRequest) (*Tab, error) {
	t, err := s.tabs.Open(ctx, c.UserID, req.AccountID, req.URL, req.Title, req.Position)
	if err != nil {
		return nil, err
	}
	res := toTab(t)
	return &res, nil
}

func (s *Service) ListTabs(ctx context.Context, c Caller, req *AccountRequest) (*ListTabsResponse, error) {
	list, err := s.tabs.List(ctx, c.UserID, req.AccountID)
	if err != nil {
		return nil, err
	}
	res := &ListTabsResponse{Tabs: make([]Tab, 0, len(list))}
	for _, t := range list {
		res.Tabs = append(res.Tabs, toTab(t))
	}
	return res, nil
}

func (s *Service) CloseTab(ctx context.Context, c Caller, req *CloseTabRequest) (*Empty, error) {
	if err := s.tabs.Close(ctx, c.UserID, req.AccountID, req.TabID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// --- storage ---

func parseKind(s string) (models.EntryKind, error) {
	k, err := models.ParseEntryKind(s)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, common.ErrorValidation)
	}
	return k, nil
}

func (s *Service) StoragePut(ctx context.Context, c Caller, req *StoragePutRequest) (*Empty, error) {
	kind, err := parseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	err = s.storage.Put(ctx, c.UserID, c.SessionID, req.Namespace, storagectx.PutInput{
		Kind:          kind,
		Key:           req.Key,
		Value:         req.Value,
		SessionScoped: req.SessionScoped,
		ExpiresAt:     req.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *Service) StorageGetAll(ctx context.Context, c Caller, req *StorageGetAllRequest) (*StorageGetAllResponse, error) {
	kind, err := parseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	items, err := s.storage.GetAll(ctx, c.UserID, c.SessionID, req.Namespace, kind)
	if err != nil {
		return nil, err
	}
	res := &StorageGetAllResponse{Entries: make([]StorageEntry, 0, len(items))}
	for _, it := range items {
		res.Entries = append(res.Entries, StorageEntry{
			Key:           it.Key,
			Value:         it.Value,
			SessionScoped: it.SessionScoped,
			ExpiresAt:     it.ExpiresAt,
		})
	}
	return res, nil
}

func (s *Service) StorageClear(ctx context.Context, c Caller, req *StorageClearRequest) (*Empty, error) {
	kinds := make([]models.EntryKind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kind, err := parseKind(k)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	if err := s.storage.Clear(ctx, c.UserID, c.SessionID, req.Namespace, kinds...); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// --- sessions ---

// CurrentSession validates and touches the caller's session. If the working
// set behind it was lost, it is rebuilt from durable storage.
func (s *Service) CurrentSession(ctx context.Context, c Caller, _ *Empty) (*SessionResponse, error) {
	sess, err := s.sessions.Validate(ctx, c.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != c.UserID {
		return nil, common.ErrorNotFound
	}
	ac, err := s.switcher.Resume(ctx, sess)
	if err != nil {
		return nil, err
	}
	sess, err = s.sessions.Touch(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return &SessionResponse{
		SessionID:      sess.ID,
		AccountID:      sess.AccountID,
		Namespace:      ac.Namespace,
		ProxyConfigID:  ac.ProxyConfigID,
		ExpiresAt:      sess.ExpiresAt,
		LastActivityAt: sess.LastActivityAt,
	}, nil
}

// PurgeSessions runs the expired-session sweep on demand. Admins only.
func (s *Service) PurgeSessions(ctx context.Context, c Caller, _ *Empty) (*PurgeSessionsResponse, error) {
	admin, err := s.users.IsAdmin(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, fmt.Errorf("admin role required: %w", common.ErrorForbidden)
	}
	n, err := s.sessions.PurgeExpired(ctx)
	if err != nil {
		return nil, err
	}
	return &PurgeSessionsResponse{Purged: n}, nil
}
