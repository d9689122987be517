package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/accountctx/internal/client/client"
	"github.com/dmitrijs2005/accountctx/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/cryptox"
	"github.com/dmitrijs2005/accountctx/internal/server/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is a client.Client that remembers one registered user.
type fakeClient struct {
	client.Client

	salt, verifier []byte
	token, session string

	sessionErr error
	logoutErr  error
	logouts    int
}

func (f *fakeClient) Register(_ context.Context, _ string, salt, verifier []byte) error {
	f.salt, f.verifier = salt, verifier
	return nil
}

func (f *fakeClient) GetSalt(context.Context, string) ([]byte, error) {
	if f.salt == nil {
		return nil, common.ErrorNotFound
	}
	return f.salt, nil
}

func (f *fakeClient) Login(_ context.Context, _ string, verifier []byte) error {
	if string(verifier) != string(f.verifier) {
		return client.ErrUnauthorized
	}
	f.token, f.session = "token-1", ""
	return nil
}

func (f *fakeClient) SwitchAccount(_ context.Context, accountID, _ string) (*api.SwitchAccountResponse, error) {
	f.session = "sess-" + accountID
	return &api.SwitchAccountResponse{Success: true, AccountID: accountID, SessionID: f.session}, nil
}

func (f *fakeClient) CurrentSession(context.Context) (*api.SessionResponse, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return &api.SessionResponse{SessionID: f.session}, nil
}

func (f *fakeClient) Logout(context.Context) error {
	f.logouts++
	f.session = ""
	return f.logoutErr
}

func (f *fakeClient) Credentials() (string, string) { return f.token, f.session }
func (f *fakeClient) SetCredentials(token, session string) {
	f.token, f.session = token, session
}
func (f *fakeClient) Ping(context.Context) error { return nil }
func (f *fakeClient) Close() error              { return nil }

func newAuth(t *testing.T) (*fakeClient, *sql.DB, AuthService) {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fc := &fakeClient{}
	return fc, db, NewAuthService(fc, db)
}

func stored(t *testing.T, db *sql.DB) map[string][]byte {
	t.Helper()
	m, err := metadata.NewSQLiteRepository(db).List(context.Background())
	require.NoError(t, err)
	return m
}

func TestRegisterAndLogin(t *testing.T) {
	fc, db, auth := newAuth(t)
	ctx := context.Background()

	require.NoError(t, auth.Register(ctx, "alice", []byte("pw")))
	assert.Len(t, fc.salt, 32)
	assert.Equal(t, cryptox.MakeVerifier(cryptox.DeriveMasterKey([]byte("pw"), fc.salt)), fc.verifier)

	require.ErrorIs(t, auth.Login(ctx, "alice", []byte("wrong")), client.ErrUnauthorized)
	assert.Empty(t, stored(t, db))

	require.NoError(t, auth.Login(ctx, "alice", []byte("pw")))
	m := stored(t, db)
	assert.Equal(t, []byte("alice"), m[metadata.KeyUsername])
	assert.Equal(t, fc.salt, m[metadata.KeySalt])
	assert.Equal(t, []byte("token-1"), m[metadata.KeyAccessToken])
}

func TestVerifier(t *testing.T) {
	fc, _, auth := newAuth(t)
	ctx := context.Background()

	_, err := auth.Verifier(ctx, []byte("pw"))
	require.ErrorIs(t, err, client.ErrNotSignedIn)

	require.NoError(t, auth.Register(ctx, "alice", []byte("pw")))
	require.NoError(t, auth.Login(ctx, "alice", []byte("pw")))

	v, err := auth.Verifier(ctx, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, fc.verifier, v)
}

func TestSwitchThenRestore(t *testing.T) {
	fc, db, auth := newAuth(t)
	ctx := context.Background()
	require.NoError(t, auth.Register(ctx, "alice", []byte("pw")))
	require.NoError(t, auth.Login(ctx, "alice", []byte("pw")))

	resp, err := auth.Switch(ctx, "acc-1", "")
	require.NoError(t, err)
	assert.Equal(t, "sess-acc-1", resp.SessionID)
	assert.Equal(t, []byte("sess-acc-1"), stored(t, db)[metadata.KeySessionID])

	// a new process starts with empty credentials
	fc.SetCredentials("", "")
	user, sess, err := auth.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	require.NotNil(t, sess)
	assert.Equal(t, "sess-acc-1", sess.SessionID)
	assert.Equal(t, "token-1", fc.token)
}

func TestRestore_NothingSaved(t *testing.T) {
	_, _, auth := newAuth(t)

	user, sess, err := auth.Restore(context.Background())
	require.NoError(t, err)
	assert.Empty(t, user)
	assert.Nil(t, sess)
}

func TestRestore_StaleSession(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantUser  string
		wantToken bool
	}{
		{name: "session gone", err: common.ErrorNotFound, wantUser: "alice", wantToken: true},
		{name: "token expired", err: client.ErrUnauthorized, wantUser: "", wantToken: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, db, auth := newAuth(t)
			ctx := context.Background()
			require.NoError(t, auth.Register(ctx, "alice", []byte("pw")))
			require.NoError(t, auth.Login(ctx, "alice", []byte("pw")))
			_, err := auth.Switch(ctx, "acc-1", "")
			require.NoError(t, err)

			fc.sessionErr = tt.err
			user, sess, err := auth.Restore(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, user)
			assert.Nil(t, sess)

			m := stored(t, db)
			assert.NotContains(t, m, metadata.KeySessionID)
			assert.NotContains(t, m, metadata.KeyAccountID)
			_, hasToken := m[metadata.KeyAccessToken]
			assert.Equal(t, tt.wantToken, hasToken)
			_, session := fc.Credentials()
			assert.Empty(t, session)
		})
	}
}

func TestLogout_WipesStateEvenOnServerError(t *testing.T) {
	fc, db, auth := newAuth(t)
	ctx := context.Background()
	require.NoError(t, auth.Register(ctx, "alice", []byte("pw")))
	require.NoError(t, auth.Login(ctx, "alice", []byte("pw")))

	// no session yet, so the server is not called
	require.NoError(t, auth.Logout(ctx))
	assert.Equal(t, 0, fc.logouts)

	require.NoError(t, auth.Login(ctx, "alice", []byte("pw")))
	_, err := auth.Switch(ctx, "acc-1", "")
	require.NoError(t, err)

	fc.logoutErr = client.ErrUnavailable
	require.ErrorIs(t, auth.Logout(ctx), client.ErrUnavailable)
	assert.Equal(t, 1, fc.logouts)
	assert.Empty(t, stored(t, db))
	token, _ := fc.Credentials()
	assert.Empty(t, token)
}
