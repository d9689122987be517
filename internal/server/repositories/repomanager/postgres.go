// Package repomanager provides RepositoryManager implementations for
// PostgreSQL and for process memory, wiring together repository
// constructors, transactions and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/accountctx/internal/dbx"
	"github.com/dmitrijs2005/accountctx/internal/server/migrations"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/proxies"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/storage"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/tabs"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories.
type PostgresRepositoryManager struct {
	db *sql.DB
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) *PostgresRepositoryManager {
	return &PostgresRepositoryManager{db: db}
}

func bind(db dbx.DBTX) Repositories {
	return Repositories{
		Users:    users.NewPostgresRepository(db),
		Accounts: accounts.NewPostgresRepository(db),
		Sessions: sessions.NewPostgresRepository(db),
		Storage:  storage.NewPostgresRepository(db),
		Proxies:  proxies.NewPostgresRepository(db),
		Tabs:     tabs.NewPostgresRepository(db),
	}
}

func (m *PostgresRepositoryManager) Repos() Repositories {
	return bind(m.db)
}

func (m *PostgresRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, bind(tx))
	})
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the manager's database.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.db, "."); err != nil {
		return err
	}
	return nil
}
