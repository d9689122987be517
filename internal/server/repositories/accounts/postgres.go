// Package accounts stores browsing identities. Display names and
// descriptions arrive here already encrypted.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/dbx"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

const columns = `id, user_id, name_enc, description_enc, protected, proxy_config_id, namespace,
		created_at, updated_at, deleted_at, delete_state`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.Account, error) {
	a := &models.Account{}
	var proxyID sql.NullString
	var deletedAt sql.NullTime

	err := s.Scan(&a.ID, &a.UserID, &a.EncryptedName, &a.EncryptedDescription, &a.Protected, &proxyID,
		&a.Namespace, &a.CreatedAt, &a.UpdatedAt, &deletedAt, &a.DeleteState)
	if err != nil {
		return nil, err
	}
	if proxyID.Valid {
		a.ProxyConfigID = &proxyID.String
	}
	if deletedAt.Valid {
		a.DeletedAt = &deletedAt.Time
	}
	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (id, user_id, name_enc, description_enc, protected, proxy_config_id, namespace)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query, a.ID, a.UserID, a.EncryptedName, a.EncryptedDescription,
		a.Protected, dbx.NullIfNil(a.ProxyConfigID), a.Namespace).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.Account, error) {
	query := `SELECT ` + columns + ` FROM accounts
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		 `

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string) ([]*models.Account, error) {
	query := `SELECT ` + columns + ` FROM accounts
		 WHERE user_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at
		 `
	return r.query(ctx, query, userID)
}

func (r *PostgresRepository) ListPendingDeletes(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + columns + ` FROM accounts
		 WHERE delete_state = 'pending'
		 ORDER BY deleted_at
		 `
	return r.query(ctx, query)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Update writes the mutable columns. The namespace is never touched.
func (r *PostgresRepository) Update(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`UPDATE accounts
		 SET name_enc = $1, description_enc = $2, protected = $3, proxy_config_id = $4, updated_at = now()
		 WHERE id = $5 AND user_id = $6 AND deleted_at IS NULL
		 RETURNING updated_at
		 `

	err := r.db.QueryRowContext(ctx, query, a.EncryptedName, a.EncryptedDescription, a.Protected,
		dbx.NullIfNil(a.ProxyConfigID), a.ID, a.UserID).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// MarkDeleting is phase one of account deletion. It returns the tombstoned
// row so the caller can cascade by namespace.
func (r *PostgresRepository) MarkDeleting(ctx context.Context, userID, id string, at time.Time) (*models.Account, error) {
	query :=
		`UPDATE accounts
		 SET deleted_at = $1, delete_state = 'pending', updated_at = $1
		 WHERE id = $2 AND user_id = $3 AND deleted_at IS NULL
		 RETURNING ` + columns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, at, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string) error {
	query :=
		`UPDATE accounts SET delete_state = 'done'
		 WHERE id = $1 AND delete_state = 'pending'
		 `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
