// Package services contains application services for the acctl client.
// This file defines the authentication service: register, login, switching
// the active account and keeping the session binding in local state so a
// restarted CLI picks up where it left off.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accountctx/internal/client/client"
	"github.com/dmitrijs2005/accountctx/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/cryptox"
	"github.com/dmitrijs2005/accountctx/internal/dbx"
	"github.com/dmitrijs2005/accountctx/internal/server/api"
)

// AuthService defines authentication operations for the CLI.
type AuthService interface {
	Register(ctx context.Context, username string, password []byte) error
	Login(ctx context.Context, username string, password []byte) error
	// Restore reloads the saved credentials. It returns the signed-in user
	// name and, when a session survived, the session it resumed.
	Restore(ctx context.Context) (string, *api.SessionResponse, error)
	// Verifier re-derives the signed-in user's verifier from password, for
	// unlocking protected accounts.
	Verifier(ctx context.Context, password []byte) ([]byte, error)
	Switch(ctx context.Context, accountID, verificationToken string) (*api.SwitchAccountResponse, error)
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type authService struct {
	client client.Client
	db     *sql.DB
}

// NewAuthService constructs an AuthService bound to the given API client and DB.
func NewAuthService(c client.Client, db *sql.DB) AuthService {
	return &authService{client: c, db: db}
}

func (a *authService) getMetadataRepo() metadata.Repository {
	return metadata.NewSQLiteRepository(a.db)
}

func (a *authService) optional(ctx context.Context, key string) (string, error) {
	v, err := a.getMetadataRepo().Get(ctx, key)
	if errors.Is(err, common.ErrorNotFound) {
		return "", nil
	}
	return string(v), err
}

// Register creates a user on the server. It generates a random salt, derives
// a master key from password and sends only salt and verifier.
func (a *authService) Register(ctx context.Context, username string, password []byte) error {
	salt := common.GenerateRandByteArray(32)
	key := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)

	return a.client.Register(ctx, username, salt, cryptox.MakeVerifier(key))
}

// Login authenticates and replaces whatever local state an earlier user
// left behind.
func (a *authService) Login(ctx context.Context, username string, password []byte) error {
	salt, err := a.client.GetSalt(ctx, username)
	if err != nil {
		return fmt.Errorf("get salt error: %w", err)
	}

	key := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)

	if err := a.client.Login(ctx, username, cryptox.MakeVerifier(key)); err != nil {
		return fmt.Errorf("login error: %w", err)
	}

	token, _ := a.client.Credentials()
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		if err := repo.Set(ctx, metadata.KeyUsername, []byte(username)); err != nil {
			return err
		}
		if err := repo.Set(ctx, metadata.KeySalt, salt); err != nil {
			return err
		}
		return repo.Set(ctx, metadata.KeyAccessToken, []byte(token))
	})
}

func (a *authService) Restore(ctx context.Context) (string, *api.SessionResponse, error) {
	username, err := a.optional(ctx, metadata.KeyUsername)
	if err != nil {
		return "", nil, err
	}
	token, err := a.optional(ctx, metadata.KeyAccessToken)
	if err != nil {
		return "", nil, err
	}
	if username == "" || token == "" {
		return "", nil, nil
	}
	sessionID, err := a.optional(ctx, metadata.KeySessionID)
	if err != nil {
		return "", nil, err
	}

	a.client.SetCredentials(token, sessionID)
	if sessionID == "" {
		return username, nil, nil
	}

	sess, err := a.client.CurrentSession(ctx)
	switch {
	case err == nil:
		return username, sess, nil
	case errors.Is(err, client.ErrUnauthorized):
		// the access token expired; a fresh login is needed
		a.client.SetCredentials("", "")
		return "", nil, a.getMetadataRepo().Delete(ctx, metadata.KeyAccessToken, metadata.KeySessionID, metadata.KeyAccountID)
	case errors.Is(err, common.ErrorNotFound):
		a.client.SetCredentials(token, "")
		return username, nil, a.getMetadataRepo().Delete(ctx, metadata.KeySessionID, metadata.KeyAccountID)
	default:
		return username, nil, err
	}
}

func (a *authService) Verifier(ctx context.Context, password []byte) ([]byte, error) {
	salt, err := a.getMetadataRepo().Get(ctx, metadata.KeySalt)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, client.ErrNotSignedIn
	}
	if err != nil {
		return nil, err
	}

	key := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)
	return cryptox.MakeVerifier(key), nil
}

// Switch changes the active account and remembers the new session.
func (a *authService) Switch(ctx context.Context, accountID, verificationToken string) (*api.SwitchAccountResponse, error) {
	resp, err := a.client.SwitchAccount(ctx, accountID, verificationToken)
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, metadata.KeySessionID, []byte(resp.SessionID)); err != nil {
			return err
		}
		return repo.Set(ctx, metadata.KeyAccountID, []byte(resp.AccountID))
	})
	if err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return resp, nil
}

// Logout ends the server session and wipes local state. Local state is
// wiped even if the server call fails.
func (a *authService) Logout(ctx context.Context) error {
	var errs []error
	if _, sessionID := a.client.Credentials(); sessionID != "" {
		errs = append(errs, a.client.Logout(ctx))
	}
	a.client.SetCredentials("", "")
	errs = append(errs, a.getMetadataRepo().Clear(ctx))
	return errors.Join(errs...)
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// Close releases resources held by the underlying client.
func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}
