// Package services contains server-side business logic: users, accounts,
// sessions, tabs and proxy configurations. Context switching lives in the
// switcher package and builds on these.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/auth"
	"github.com/dmitrijs2005/accountctx/internal/server/config"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/repomanager"
)

// UserService provides authentication-related operations:
// - Register: create users
// - Login: verify credentials and mint an access token
// - Unlock: re-verify credentials and mint a verification token for one
// protected account
type UserService struct {
	repomanager                       repomanager.RepositoryManager
	guard                             *access.Guard
	jwtSecret                         []byte
	accessTokenValidityDuration       time.Duration
	verificationTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(m repomanager.RepositoryManager, guard *access.Guard, cfg *config.Config) *UserService {
	return &UserService{
		repomanager:                       m,
		guard:                             guard,
		jwtSecret:                         []byte(cfg.SecretKey),
		accessTokenValidityDuration:       cfg.AccessTokenValidityDuration,
		verificationTokenValidityDuration: cfg.VerificationTokenValidityDuration,
	}
}

// Register creates a new user with the given username, salt, and verifier.
func (s *UserService) Register(ctx context.Context, username string, salt, verifier []byte) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(salt) == 0 || len(verifier) == 0 {
		return nil, fmt.Errorf("username, salt and verifier are required: %w", common.ErrorValidation)
	}

	user := &models.User{UserName: username, Salt: salt, Verifier: verifier, Role: models.RoleUser}
	u, err := s.repomanager.Repos().Users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// GetSalt returns the user's stored salt or a random salt if the user is absent,
// to avoid leaking existence through timing.
func (s *UserService) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	user, err := s.repomanager.Repos().Users.GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.getRandomSalt(), nil
		}
		return nil, common.ErrorInternal
	}
	return user.Salt, nil
}

// Login verifies the provided verifierCandidate against the stored verifier and,
// on success, returns the user and a new access token.
func (s *UserService) Login(ctx context.Context, userName string, verifierCandidate []byte) (*models.User, string, error) {
	user, err := s.repomanager.Repos().Users.GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorUnauthorized
		}
		return nil, "", common.ErrorInternal
	}
	if !s.checkVerifier(user.Verifier, verifierCandidate) {
		return nil, "", common.ErrorUnauthorized
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, "", common.ErrorInternal
	}
	return user, token, nil
}

// Unlock is the secondary verification for a protected account. The caller
// proves knowledge of the master key again and receives a short-lived token
// bound to this user and account.
func (s *UserService) Unlock(ctx context.Context, userID, accountID string, verifierCandidate []byte) (string, error) {
	if _, err := s.guard.Account(ctx, userID, accountID); err != nil {
		return "", err
	}

	user, err := s.repomanager.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", common.ErrorInternal
	}
	if !s.checkVerifier(user.Verifier, verifierCandidate) {
		return "", common.ErrorForbidden
	}

	token, err := auth.GenerateVerificationToken(userID, accountID, s.jwtSecret, s.verificationTokenValidityDuration)
	if err != nil {
		return "", common.ErrorInternal
	}
	return token, nil
}

// Verify checks a verification token for a protected account switch. Any
// failure is reported as common.ErrorForbidden.
func (s *UserService) Verify(ctx context.Context, userID, accountID, token string) error {
	if token == "" {
		return fmt.Errorf("verification token required: %w", common.ErrorForbidden)
	}
	if err := auth.CheckVerificationToken(token, userID, accountID, s.jwtSecret); err != nil {
		return fmt.Errorf("verification failed (%v): %w", err, common.ErrorForbidden)
	}
	return nil
}

// IsAdmin reports whether the user holds the admin role.
func (s *UserService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := s.repomanager.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsAdmin(), nil
}

// --- helpers below ---

func (s *UserService) getRandomSalt() []byte { return common.GenerateRandByteArray(32) }

func (s *UserService) checkVerifier(verifier []byte, candidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, candidate) == 1
}

// UserIDFromToken validates an access token and returns its user id.
func (s *UserService) UserIDFromToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("missing token: %w", common.ErrorUnauthorized)
	}
	userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, common.ErrorUnauthorized)
	}
	return userID, nil
}
