package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/workingset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func TestAccountService_CreateEncryptsMetadata(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	a, err := e.accounts.Create(ctx, "u-1", "  Work  ", "office stuff", nil)
	require.NoError(t, err)
	assert.Equal(t, "Work", a.Name)
	assert.Len(t, a.Namespace, 64)

	raw, err := e.repos.Repos().Accounts.Get(ctx, "u-1", a.ID)
	require.NoError(t, err)
	assert.Empty(t, raw.Name)
	assert.NotEmpty(t, raw.EncryptedName)
	assert.False(t, bytes.Contains(raw.EncryptedName, []byte("Work")))

	got, err := e.accounts.Get(ctx, "u-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Work", got.Name)
	assert.Equal(t, "office stuff", got.Description)

	_, err = e.accounts.Get(ctx, "u-2", a.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestAccountService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.accounts.Create(ctx, "u-1", " ", "", nil)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = e.accounts.Create(ctx, "u-1", strings.Repeat("n", maxNameLength+1), "", nil)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = e.accounts.Create(ctx, "u-1", "ok", strings.Repeat("d", maxDescriptionLength+1), nil)
	assert.ErrorIs(t, err, common.ErrorValidation)

	foreign, err := e.proxies.Create(ctx, "u-2", "http", "proxy:8080")
	require.NoError(t, err)
	_, err = e.accounts.Create(ctx, "u-1", "ok", "", &foreign.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestAccountService_ListSortAndFilter(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	for _, name := range []string{"charlie", "Alpha", "bravo"} {
		_, err := e.accounts.Create(ctx, "u-1", name, "", nil)
		require.NoError(t, err)
	}
	_, err := e.accounts.Create(ctx, "u-2", "other", "", nil)
	require.NoError(t, err)

	list, err := e.accounts.List(ctx, "u-1", ListOptions{SortBy: SortByName})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Alpha", "bravo", "charlie"}, []string{list[0].Name, list[1].Name, list[2].Name})

	list, err = e.accounts.List(ctx, "u-1", ListOptions{SortBy: SortByName, Order: "DESC"})
	require.NoError(t, err)
	assert.Equal(t, "charlie", list[0].Name)

	list, err = e.accounts.List(ctx, "u-1", ListOptions{Filter: AccountFilter{Query: "RAV"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bravo", list[0].Name)

	_, err = e.accounts.Update(ctx, "u-1", list[0].ID, models.AccountPatch{Protected: boolPtr(true)})
	require.NoError(t, err)
	list, err = e.accounts.List(ctx, "u-1", ListOptions{Filter: AccountFilter{Protected: boolPtr(true)}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Protected)

	_, err = e.accounts.List(ctx, "u-1", ListOptions{SortBy: "namespace"})
	assert.ErrorIs(t, err, common.ErrorValidation)
	_, err = e.accounts.List(ctx, "u-1", ListOptions{Order: "sideways"})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestAccountService_UpdateAndAssignProxy(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	a, err := e.accounts.Create(ctx, "u-1", "Work", "", nil)
	require.NoError(t, err)

	_, err = e.accounts.Update(ctx, "u-1", a.ID, models.AccountPatch{})
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = e.accounts.Update(ctx, "u-2", a.ID, models.AccountPatch{Name: strPtr("Stolen")})
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = e.accounts.Update(ctx, "u-1", a.ID, models.AccountPatch{Name: strPtr("Office"), Description: strPtr("9 to 5")})
	require.NoError(t, err)

	p, err := e.proxies.Create(ctx, "u-1", "socks5", "10.0.0.2:1080")
	require.NoError(t, err)
	_, err = e.accounts.AssignProxy(ctx, "u-1", a.ID, &p.ID)
	require.NoError(t, err)

	got, err := e.accounts.Get(ctx, "u-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Office", got.Name)
	assert.Equal(t, "9 to 5", got.Description)
	require.NotNil(t, got.ProxyConfigID)
	assert.Equal(t, p.ID, *got.ProxyConfigID)
	assert.Equal(t, a.Namespace, got.Namespace)

	foreign, err := e.proxies.Create(ctx, "u-2", "http", "proxy:3128")
	require.NoError(t, err)
	_, err = e.accounts.AssignProxy(ctx, "u-1", a.ID, &foreign.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = e.accounts.AssignProxy(ctx, "u-1", a.ID, nil)
	require.NoError(t, err)
	got, err = e.accounts.Get(ctx, "u-1", a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ProxyConfigID)
}

func TestAccountService_ProxyChangeReachesActiveContext(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	work, err := e.accounts.Create(ctx, "u-1", "Work", "", nil)
	require.NoError(t, err)
	personal, err := e.accounts.Create(ctx, "u-1", "Personal", "", nil)
	require.NoError(t, err)
	ac := workingset.New("u-1", work.ID, work.Namespace)
	ac.SessionID = "sess_1"
	require.NoError(t, e.active.Set(ctx, ac))

	p, err := e.proxies.Create(ctx, "u-1", "socks5", "10.0.0.2:1080")
	require.NoError(t, err)
	_, err = e.accounts.AssignProxy(ctx, "u-1", work.ID, &p.ID)
	require.NoError(t, err)

	got, err := e.active.Get(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, got.ProxyConfigID)
	assert.Equal(t, p.ID, *got.ProxyConfigID)
	assert.Equal(t, "sess_1", got.SessionID)

	// an inactive account's proxy leaves the working set alone
	_, err = e.accounts.AssignProxy(ctx, "u-1", personal.ID, nil)
	require.NoError(t, err)
	got, err = e.active.Get(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, got.ProxyConfigID)

	_, err = e.accounts.Update(ctx, "u-1", work.ID, models.AccountPatch{ClearProxy: true})
	require.NoError(t, err)
	got, err = e.active.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, got.ProxyConfigID)
}

func seedAccount(t *testing.T, e *env, userID string) (*models.Account, *workingset.ActiveContext) {
	t.Helper()
	ctx := context.Background()

	a, err := e.accounts.Create(ctx, userID, "Work", "", nil)
	require.NoError(t, err)
	ac := workingset.New(userID, a.ID, a.Namespace)

	require.NoError(t, e.store.Put(ctx, ac, a.Namespace, models.KindCookie, "session", workingset.Entry{Value: []byte("abc")}))
	_, err = e.sessions.Create(ctx, userID, a.ID, models.ClientMeta{})
	require.NoError(t, err)
	_, err = e.tabSvc.Open(ctx, userID, a.ID, "https://example.com", "Example", 0)
	require.NoError(t, err)
	return a, ac
}

func TestAccountService_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	a, ac := seedAccount(t, e, "u-1")
	require.NoError(t, e.active.Set(ctx, ac))

	require.NoError(t, e.accounts.Delete(ctx, "u-1", a.ID))

	_, err := e.accounts.Get(ctx, "u-1", a.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = e.active.Get(ctx, "u-1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	left, err := e.store.GetAll(ctx, ac, a.Namespace, models.KindCookie)
	require.NoError(t, err)
	assert.Empty(t, left)

	tabs, err := e.repos.Repos().Tabs.List(ctx, scopeFor(ac))
	require.NoError(t, err)
	assert.Empty(t, tabs)

	pending, err := e.repos.Repos().Accounts.ListPendingDeletes(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, e.accounts.Delete(ctx, "u-1", a.ID), common.ErrorNotFound)
}

func TestAccountService_DeleteLeavesOtherActiveAccount(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	a, _ := seedAccount(t, e, "u-1")
	other, err := e.accounts.Create(ctx, "u-1", "Personal", "", nil)
	require.NoError(t, err)
	require.NoError(t, e.active.Set(ctx, workingset.New("u-1", other.ID, other.Namespace)))

	require.NoError(t, e.accounts.Delete(ctx, "u-1", a.ID))

	got, err := e.active.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, other.ID, got.AccountID)
}

func TestAccountService_PendingDeleteIsResumed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	a, ac := seedAccount(t, e, "u-1")

	e.tabs.fail.Store(true)
	require.NoError(t, e.accounts.Delete(ctx, "u-1", a.ID))

	_, err := e.accounts.Get(ctx, "u-1", a.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	pending, err := e.repos.Repos().Accounts.ListPendingDeletes(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	n, err := e.accounts.ResumePendingDeletes(ctx)
	assert.ErrorIs(t, err, errTabsDown)
	assert.Equal(t, 0, n)

	e.tabs.fail.Store(false)
	n, err = e.accounts.ResumePendingDeletes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tabs, err := e.repos.Repos().Tabs.List(ctx, scopeFor(ac))
	require.NoError(t, err)
	assert.Empty(t, tabs)

	pending, err = e.repos.Repos().Accounts.ListPendingDeletes(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
