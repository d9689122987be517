// Package metadata is the CLI's local key/value store: the signed-in user,
// the salt their keys derive from and the live session binding.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyUsername    = "username"
	KeySalt        = "salt"
	KeyAccessToken = "access_token"
	KeySessionID   = "session_id"
	KeyAccountID   = "account_id"
)

type Repository interface {
	// Get returns common.ErrorNotFound for an absent key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
