package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/workingset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scopeFor(ac *workingset.ActiveContext) access.Scope {
	return access.Scope{UserID: ac.UserID, AccountID: ac.AccountID}
}

func TestTabService_OpenListClose(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	work, err := e.accounts.Create(ctx, "u-1", "Work", "", nil)
	require.NoError(t, err)
	personal, err := e.accounts.Create(ctx, "u-1", "Personal", "", nil)
	require.NoError(t, err)

	tab, err := e.tabSvc.Open(ctx, "u-1", work.ID, "https://mail.example.com/inbox", "Inbox", 0)
	require.NoError(t, err)
	_, err = e.tabSvc.Open(ctx, "u-1", personal.ID, "https://news.example.com", "News", 0)
	require.NoError(t, err)

	list, err := e.tabSvc.List(ctx, "u-1", work.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Inbox", list[0].Title)

	assert.ErrorIs(t, e.tabSvc.Close(ctx, "u-1", personal.ID, tab.ID), common.ErrorNotFound)
	require.NoError(t, e.tabSvc.Close(ctx, "u-1", work.ID, tab.ID))

	list, err = e.tabSvc.List(ctx, "u-1", work.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTabService_Guards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	a, err := e.accounts.Create(ctx, "u-1", "Work", "", nil)
	require.NoError(t, err)

	_, err = e.tabSvc.Open(ctx, "u-2", a.ID, "https://example.com", "x", 0)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = e.tabSvc.List(ctx, "u-2", a.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = e.tabSvc.Open(ctx, "u-1", a.ID, "not a url", "x", 0)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = e.tabSvc.Open(ctx, "u-1", a.ID, "https://example.com", "x", -1)
	assert.ErrorIs(t, err, common.ErrorValidation)
}
