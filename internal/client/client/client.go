package client

import (
	"context"

	"github.com/dmitrijs2005/accountctx/internal/server/api"
)

// Client is the server surface the CLI uses.
type Client interface {
	Close() error
	Ping(ctx context.Context) error

	Register(ctx context.Context, username string, salt, verifier []byte) error
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) error
	Logout(ctx context.Context) error

	CreateAccount(ctx context.Context, req *api.CreateAccountRequest) (*api.Account, error)
	ListAccounts(ctx context.Context, req *api.ListAccountsRequest) ([]api.Account, error)
	UnlockAccount(ctx context.Context, accountID string, verifier []byte) (string, error)
	SwitchAccount(ctx context.Context, accountID, verificationToken string) (*api.SwitchAccountResponse, error)
	DeleteAccount(ctx context.Context, accountID string) error
	CurrentSession(ctx context.Context) (*api.SessionResponse, error)

	StoragePut(ctx context.Context, req *api.StoragePutRequest) error
	StorageGetAll(ctx context.Context, namespace, kind string) ([]api.StorageEntry, error)
	StorageClear(ctx context.Context, namespace string, kinds ...string) error

	// Credentials returns the access token and session id sent with every
	// authenticated call; SetCredentials restores them from local state.
	Credentials() (accessToken, sessionID string)
	SetCredentials(accessToken, sessionID string)
}
