// Package tabs stores open browser tabs, an account-scoped resource.
package tabs

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/dbx"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.Tab) (*models.Tab, error) {
	query :=
		`INSERT INTO tabs (id, user_id, account_id, url, title, position)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query, t.ID, t.UserID, t.AccountID, t.URL, t.Title, t.Position).Scan(&t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) List(ctx context.Context, scope access.Scope) ([]*models.Tab, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	clause, args, _ := scope.Predicate("user_id", "account_id", 1)
	query := `SELECT id, user_id, account_id, url, title, position, created_at FROM tabs
		 WHERE ` + clause + `
		 ORDER BY position, created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Tab
	for rows.Next() {
		t := &models.Tab{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &t.URL, &t.Title, &t.Position, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, scope access.Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	clause, args, next := scope.Predicate("user_id", "account_id", 1)
	query := fmt.Sprintf(`DELETE FROM tabs WHERE %s AND id = $%d`, clause, next)

	res, err := r.db.ExecContext(ctx, query, append(args, id)...)
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

func (r *PostgresRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tabs WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
