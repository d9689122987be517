package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	u := e.user(t, "alice")

	_, err := e.users.Register(ctx, "alice", []byte("s"), []byte("v"))
	assert.ErrorIs(t, err, common.ErrorConflict)

	_, err = e.users.Register(ctx, "  ", []byte("s"), []byte("v"))
	assert.ErrorIs(t, err, common.ErrorValidation)

	got, token, err := e.users.Login(ctx, "alice", []byte("verifier-alice"))
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, token)

	_, _, err = e.users.Login(ctx, "alice", []byte("wrong"))
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, _, err = e.users.Login(ctx, "nobody", []byte("x"))
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestUserService_GetSalt(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.user(t, "alice")

	salt, err := e.users.GetSalt(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("salt"), salt)

	random, err := e.users.GetSalt(ctx, "ghost")
	require.NoError(t, err)
	assert.Len(t, random, 32)
}

func TestUserService_UnlockAndVerify(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.user(t, "alice")
	bob := e.user(t, "bob")

	a, err := e.accounts.Create(ctx, alice.ID, "Bank", "", nil)
	require.NoError(t, err)

	_, err = e.users.Unlock(ctx, alice.ID, a.ID, []byte("wrong"))
	assert.ErrorIs(t, err, common.ErrorForbidden)

	_, err = e.users.Unlock(ctx, bob.ID, a.ID, []byte("verifier-bob"))
	assert.ErrorIs(t, err, common.ErrorNotFound)

	token, err := e.users.Unlock(ctx, alice.ID, a.ID, []byte("verifier-alice"))
	require.NoError(t, err)

	require.NoError(t, e.users.Verify(ctx, alice.ID, a.ID, token))
	assert.ErrorIs(t, e.users.Verify(ctx, alice.ID, "other", token), common.ErrorForbidden)
	assert.ErrorIs(t, e.users.Verify(ctx, alice.ID, a.ID, ""), common.ErrorForbidden)
}

func TestUserService_IsAdmin(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice")

	admin, err := e.users.IsAdmin(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, admin)

	_, err = e.users.IsAdmin(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUserService_UserIDFromToken(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.user(t, "alice")

	_, token, err := e.users.Login(ctx, "alice", []byte("verifier-alice"))
	require.NoError(t, err)

	id, err := e.users.UserIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	_, err = e.users.UserIDFromToken("")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = e.users.UserIDFromToken("not-a-jwt")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	// an unlock token is not an access token
	a, err := e.accounts.Create(ctx, u.ID, "Bank", "", nil)
	require.NoError(t, err)
	unlock, err := e.users.Unlock(ctx, u.ID, a.ID, []byte("verifier-alice"))
	require.NoError(t, err)
	_, err = e.users.UserIDFromToken(unlock)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}
