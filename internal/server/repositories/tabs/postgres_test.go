package tabs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestList_UsesScopePredicate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`(?s)FROM\s+tabs\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+\(account_id\s*=\s*\$2\s+OR\s+account_id\s+IS\s+NULL\)`).
		WithArgs("u", "a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "account_id", "url", "title", "position", "created_at"}).
			AddRow("t-1", "u", "a", "https://example.com", "Example", 0, now))

	got, err := repo.List(context.Background(), access.Scope{UserID: "u", AccountID: "a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com", got[0].URL)
}

func TestDelete_NotOwnedIsNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`^DELETE\s+FROM\s+tabs\s+WHERE\s+user_id\s*=\s*\$1.*AND\s+id\s*=\s*\$3`).
		WithArgs("u", "a", "t-9").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), access.Scope{UserID: "u", AccountID: "a"}, "t-9")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`^INSERT\s+INTO\s+tabs`).WithArgs("t-1", "u", "a", "https://x", "X", 2).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	tab, err := repo.Create(context.Background(), &models.Tab{ID: "t-1", UserID: "u", AccountID: "a", URL: "https://x", Title: "X", Position: 2})
	require.NoError(t, err)
	assert.Equal(t, now, tab.CreatedAt)
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	_, err := r.Create(ctx, &models.Tab{ID: "t-1", UserID: "u", AccountID: "a"})
	require.NoError(t, err)
	_, err = r.Create(ctx, &models.Tab{ID: "t-2", UserID: "u", AccountID: "b"})
	require.NoError(t, err)

	got, err := r.List(ctx, access.Scope{UserID: "u", AccountID: "a"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.ErrorIs(t, r.Delete(ctx, access.Scope{UserID: "u", AccountID: "a"}, "t-2"), common.ErrorNotFound)
	require.NoError(t, r.DeleteByAccount(ctx, "b"))
	got, err = r.List(ctx, access.Scope{UserID: "u"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
