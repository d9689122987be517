// Package proxies stores egress configurations. Their contents are opaque to
// the account context; only ids are attached to accounts.
package proxies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/dbx"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.ProxyConfig) (*models.ProxyConfig, error) {
	query :=
		`INSERT INTO proxy_configs (id, user_id, kind, address)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at
		 `

	if err := r.db.QueryRowContext(ctx, query, p.ID, p.UserID, p.Kind, p.Address).Scan(&p.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.ProxyConfig, error) {
	query :=
		`SELECT id, user_id, kind, address, created_at FROM proxy_configs
		 WHERE id = $1 AND user_id = $2
		 `

	p := &models.ProxyConfig{}
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&p.ID, &p.UserID, &p.Kind, &p.Address, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string) ([]*models.ProxyConfig, error) {
	query :=
		`SELECT id, user_id, kind, address, created_at FROM proxy_configs
		 WHERE user_id = $1 ORDER BY created_at
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ProxyConfig
	for rows.Next() {
		p := &models.ProxyConfig{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Kind, &p.Address, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
