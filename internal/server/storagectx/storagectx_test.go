package storagectx

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/cryptox"
	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/blobstore"
	"github.com/dmitrijs2005/accountctx/internal/server/lock"
	"github.com/dmitrijs2005/accountctx/internal/server/metrics"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountctx/internal/server/workingset"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repos   *repomanager.MemoryRepositoryManager
	blobs   *blobstore.MemoryStore
	metrics *metrics.Metrics
	store   *Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := cryptox.DefaultEncryptionConfig
	f := &fixture{
		repos:   repomanager.NewMemoryRepositoryManager(),
		blobs:   blobstore.NewMemoryStore(),
		metrics: metrics.New(nil),
	}
	keys := cryptox.NewKeyService([]byte("0123456789abcdef0123456789abcdef"), 1000, cfg)
	f.store = NewStore(f.repos, keys, cryptox.NewCodec(cfg), f.metrics, logging.NopLogger{},
		Options{Blobs: f.blobs, BlobThreshold: 64})
	return f
}

func TestStore_PutGetAllSealed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ac := workingset.New("u", "a", "ns-a")

	require.NoError(t, f.store.Put(ctx, ac, "ns-a", models.KindCookie, "session", workingset.Entry{Value: []byte("abc")}))

	rows, err := f.repos.Repos().Storage.List(ctx, access.Scope{UserID: "u", AccountID: "a"}, "ns-a", nil, time.Now())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, bytes.Contains(rows[0].EncryptedValue, []byte("abc")))

	got, err := f.store.GetAll(ctx, ac, "ns-a", models.KindCookie)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", string(got[0].Value))
}

func TestStore_ForeignNamespaceIsIsolationViolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ac := workingset.New("u", "a", "ns-a")

	err := f.store.Put(ctx, ac, "ns-b", models.KindCookie, "k", workingset.Entry{Value: []byte("v")})
	assert.ErrorIs(t, err, common.ErrIsolationViolation)
	assert.NotErrorIs(t, err, common.ErrorNotFound)

	_, err = f.store.GetAll(ctx, ac, "ns-b", models.KindCookie)
	assert.ErrorIs(t, err, common.ErrIsolationViolation)

	err = f.store.Clear(ctx, nil, "ns-a")
	assert.ErrorIs(t, err, common.ErrIsolationViolation)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IsolationViolations.WithLabelValues("put")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IsolationViolations.WithLabelValues("clear")))
}

func TestStore_LargeCacheGoesToBlobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ac := workingset.New("u", "a", "ns-a")
	big := bytes.Repeat([]byte("x"), 500)

	require.NoError(t, f.store.Put(ctx, ac, "ns-a", models.KindCache, "img", workingset.Entry{Value: big}))
	assert.Equal(t, 1, f.blobs.Len())

	// overwriting drops the previous blob
	require.NoError(t, f.store.Put(ctx, ac, "ns-a", models.KindCache, "img", workingset.Entry{Value: big}))
	assert.Equal(t, 1, f.blobs.Len())

	got, err := f.store.GetAll(ctx, ac, "ns-a", models.KindCache)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, big, got[0].Value)

	require.NoError(t, f.store.Clear(ctx, ac, "ns-a", models.KindCache))
	assert.Equal(t, 0, f.blobs.Len())
}

func TestStore_SnapshotReplacesAndLoadRestores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ac := workingset.New("u", "a", "ns-a")

	require.NoError(t, f.store.Put(ctx, ac, "ns-a", models.KindLocal, "stale", workingset.Entry{Value: []byte("old")}))

	ac.Put(models.KindCookie, "session", workingset.Entry{Value: []byte("abc")})
	ac.Put(models.KindLocal, "theme", workingset.Entry{Value: []byte("dark")})
	require.NoError(t, f.store.Snapshot(ctx, ac))

	restored := workingset.New("u", "a", "ns-a")
	restored.Put(models.KindCookie, "junk", workingset.Entry{Value: []byte("x")})
	require.NoError(t, f.store.Load(ctx, restored))

	assert.Equal(t, 2, restored.Len())
	assert.Equal(t, "abc", string(restored.Entries[models.KindCookie]["session"].Value))
	_, ok := restored.Entries[models.KindLocal]["stale"]
	assert.False(t, ok)
}

func TestStore_SnapshotCancelled(t *testing.T) {
	f := newFixture(t)
	ac := workingset.New("u", "a", "ns-a")
	ac.Put(models.KindCookie, "k", workingset.Entry{Value: []byte("v")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.store.Snapshot(ctx, ac), context.Canceled)
}

func TestStore_PurgeSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ac := workingset.New("u", "a", "ns-a")
	ac.SessionID = "sess_1"

	require.NoError(t, f.store.Put(ctx, ac, "ns-a", models.KindSession, "tmp", workingset.Entry{Value: []byte("v"), SessionScoped: true}))
	require.NoError(t, f.store.Put(ctx, ac, "ns-a", models.KindCookie, "keep", workingset.Entry{Value: []byte("v")}))

	require.NoError(t, f.store.PurgeSession(ctx, "sess_1"))
	require.NoError(t, f.store.PurgeSession(ctx, "sess_1"))

	got, err := f.store.read(ctx, ac, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].Key)
}

func TestStore_TamperedRowIsDecryptionFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ac := workingset.New("u", "a", "ns-a")

	require.NoError(t, f.repos.Repos().Storage.Upsert(ctx, &models.StorageEntry{
		UserID: "u", AccountID: "a", Namespace: "ns-a", Kind: models.KindCookie, Key: "k",
		EncryptedValue: bytes.Repeat([]byte{1}, 40),
	}))

	_, err := f.store.GetAll(ctx, ac, "ns-a", models.KindCookie)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}

type fakeSessions map[string]*models.Session

func (f fakeSessions) Validate(_ context.Context, id string) (*models.Session, error) {
	s, ok := f[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return s, nil
}

func activeFor(userID, sessionID string) *workingset.ActiveContext {
	ac := workingset.New(userID, "a", "ns-a")
	ac.SessionID = sessionID
	return ac
}

func newService(f *fixture) (*Service, workingset.Store, fakeSessions) {
	active := workingset.NewMemoryStore()
	sessions := fakeSessions{
		"sess_u": {ID: "sess_u", UserID: "u", AccountID: "a"},
		"sess_v": {ID: "sess_v", UserID: "v", AccountID: "b"},
	}
	return NewService(active, lock.NewLocal(), f.store, sessions), active, sessions
}

func TestService_RequiresActiveAndMatchingNamespace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, active, _ := newService(f)

	err := svc.Put(ctx, "u", "sess_u", "ns-a", PutInput{Kind: models.KindCookie, Key: "k", Value: []byte("v")})
	assert.ErrorIs(t, err, ErrNoActiveAccount)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, active.Set(ctx, activeFor("u", "sess_u")))

	err = svc.Put(ctx, "u", "sess_u", "ns-b", PutInput{Kind: models.KindCookie, Key: "k", Value: []byte("v")})
	assert.ErrorIs(t, err, common.ErrIsolationViolation)

	_, err = svc.GetAll(ctx, "u", "sess_u", "ns-b", models.KindCookie)
	assert.ErrorIs(t, err, common.ErrIsolationViolation)

	err = svc.Put(ctx, "u", "sess_u", "ns-a", PutInput{Kind: models.KindCookie, Key: "", Value: []byte("v")})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestService_RequiresLiveBoundSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, active, sessions := newService(f)
	require.NoError(t, active.Set(ctx, activeFor("u", "sess_u")))
	require.NoError(t, svc.Put(ctx, "u", "sess_u", "ns-a", PutInput{Kind: models.KindCookie, Key: "k", Value: []byte("v")}))

	tests := []struct {
		name    string
		session string
	}{
		{"empty", ""},
		{"unknown", "sess_missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetAll(ctx, "u", tt.session, "ns-a", models.KindCookie)
			assert.ErrorIs(t, err, ErrNoSession)
			assert.ErrorIs(t, err, common.ErrorNotFound)

			err = svc.Put(ctx, "u", tt.session, "ns-a", PutInput{Kind: models.KindCookie, Key: "k2", Value: []byte("v")})
			assert.ErrorIs(t, err, ErrNoSession)

			err = svc.Clear(ctx, "u", tt.session, "ns-a")
			assert.ErrorIs(t, err, ErrNoSession)
		})
	}

	// destroyed after the context was loaded
	delete(sessions, "sess_u")
	_, err := svc.GetAll(ctx, "u", "sess_u", "ns-a", models.KindCookie)
	assert.ErrorIs(t, err, ErrNoSession)

	// live but not the session the active context belongs to
	sessions["sess_old"] = &models.Session{ID: "sess_old", UserID: "u", AccountID: "a"}
	_, err = svc.GetAll(ctx, "u", "sess_old", "ns-a", models.KindCookie)
	assert.ErrorIs(t, err, ErrNoSession)

	// nothing was cleared by the rejected calls
	got, err := f.store.GetAll(ctx, activeFor("u", "sess_u"), "ns-a", models.KindCookie)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestService_ForeignSessionIsIsolationViolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, active, _ := newService(f)
	require.NoError(t, active.Set(ctx, activeFor("u", "sess_u")))

	_, err := svc.GetAll(ctx, "u", "sess_v", "ns-a", models.KindCookie)
	assert.ErrorIs(t, err, common.ErrIsolationViolation)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IsolationViolations.WithLabelValues("get_all")))
}

func TestService_PutGetClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc, active, _ := newService(f)
	require.NoError(t, active.Set(ctx, activeFor("u", "sess_u")))

	require.NoError(t, svc.Put(ctx, "u", "sess_u", "ns-a", PutInput{Kind: models.KindCookie, Key: "session", Value: []byte("abc")}))
	require.NoError(t, svc.Put(ctx, "u", "sess_u", "ns-a", PutInput{Kind: models.KindLocal, Key: "theme", Value: []byte("dark")}))

	items, err := svc.GetAll(ctx, "u", "sess_u", "ns-a", models.KindCookie)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "abc", string(items[0].Value))

	// written through to durable storage
	durable, err := f.store.GetAll(ctx, workingset.New("u", "a", "ns-a"), "ns-a", models.KindCookie)
	require.NoError(t, err)
	assert.Len(t, durable, 1)

	require.NoError(t, svc.Clear(ctx, "u", "sess_u", "ns-a", models.KindCookie))
	items, err = svc.GetAll(ctx, "u", "sess_u", "ns-a", models.KindCookie)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = svc.GetAll(ctx, "u", "sess_u", "ns-a", models.KindLocal)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
