package workingset

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveContext_PutListClear(t *testing.T) {
	ac := New("u", "a", "ns")
	now := time.Now()
	past := now.Add(-time.Second)

	ac.Put(models.KindCookie, "b", Entry{Value: []byte("2")})
	ac.Put(models.KindCookie, "a", Entry{Value: []byte("1")})
	ac.Put(models.KindCookie, "gone", Entry{Value: []byte("x"), ExpiresAt: &past})
	ac.Put(models.KindLocal, "k", Entry{Value: []byte("v")})

	items := ac.List(models.KindCookie, now)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Key)
	assert.Equal(t, 4, ac.Len())

	ac.Clear(models.KindCookie)
	assert.Equal(t, 1, ac.Len())

	ac.Clear()
	ac.Clear()
	assert.Equal(t, 0, ac.Len())
}

func TestActiveContext_CloneIsDeep(t *testing.T) {
	proxy := "p"
	ac := New("u", "a", "ns")
	ac.ProxyConfigID = &proxy
	ac.Put(models.KindCache, "k", Entry{Value: []byte("v")})

	c := ac.Clone()
	c.Entries[models.KindCache]["k"].Value[0] = 'X'
	*c.ProxyConfigID = "q"

	assert.Equal(t, "v", string(ac.Entries[models.KindCache]["k"].Value))
	assert.Equal(t, "p", *ac.ProxyConfigID)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "u")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	ac := New("u", "a", "ns")
	ac.Put(models.KindCookie, "session", Entry{Value: []byte("abc")})
	require.NoError(t, s.Set(ctx, ac))

	// mutations after Set do not leak into the store
	ac.Clear()

	got, err := s.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())

	require.NoError(t, s.Clear(ctx, "u"))
	require.NoError(t, s.Clear(ctx, "u"))
	_, err = s.Get(ctx, "u")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
