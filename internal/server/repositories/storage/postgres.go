// Package storage persists per-account cookie, cache, local and session
// entries. Values arrive sealed; this layer never sees plaintext.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

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

func (r *PostgresRepository) Upsert(ctx context.Context, e *models.StorageEntry) error {
	query :=
		`INSERT INTO storage_entries (namespace, kind, key, user_id, account_id, value_enc, blob_key, session_id, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (namespace, kind, key)
		 DO UPDATE SET
			value_enc = EXCLUDED.value_enc,
			blob_key = EXCLUDED.blob_key,
			session_id = EXCLUDED.session_id,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
		 WHERE storage_entries.user_id = EXCLUDED.user_id
		 `

	res, err := r.db.ExecContext(ctx, query, e.Namespace, string(e.Kind), e.Key, e.UserID, dbx.NullIfEmpty(e.AccountID),
		e.EncryptedValue, dbx.NullIfNil(e.BlobKey), dbx.NullIfNil(e.SessionID), dbx.NullIfNil(e.ExpiresAt), e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// where renders the scope predicate followed by the namespace and kind
// filters, returning the clause, its args and the next placeholder.
func where(scope access.Scope, namespace string, kinds []models.EntryKind) (string, []any, int) {
	clause, args, next := scope.Predicate("user_id", "account_id", 1)

	clause += fmt.Sprintf(" AND namespace = $%d", next)
	args = append(args, namespace)
	next++

	kinds = kindsOrAll(kinds)
	ph := make([]string, 0, len(kinds))
	for _, k := range kinds {
		ph = append(ph, fmt.Sprintf("$%d", next))
		args = append(args, string(k))
		next++
	}
	clause += " AND kind IN (" + strings.Join(ph, ", ") + ")"
	return clause, args, next
}

func (r *PostgresRepository) List(ctx context.Context, scope access.Scope, namespace string, kinds []models.EntryKind, now time.Time) ([]*models.StorageEntry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	clause, args, next := where(scope, namespace, kinds)
	query := `SELECT namespace, kind, key, user_id, account_id, value_enc, blob_key, session_id, expires_at, updated_at
		 FROM storage_entries
		 WHERE ` + clause + fmt.Sprintf(" AND (expires_at IS NULL OR expires_at > $%d)", next) + `
		 ORDER BY kind, key`
	args = append(args, now)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.StorageEntry
	for rows.Next() {
		e := &models.StorageEntry{}
		var kind string
		var accountID, blobKey, sessionID sql.NullString
		var expiresAt sql.NullTime
		if err := rows.Scan(&e.Namespace, &kind, &e.Key, &e.UserID, &accountID, &e.EncryptedValue,
			&blobKey, &sessionID, &expiresAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.Kind = models.EntryKind(kind)
		e.AccountID = accountID.String
		if blobKey.Valid {
			e.BlobKey = &blobKey.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if expiresAt.Valid {
			e.ExpiresAt = &expiresAt.Time
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) DeleteByNamespace(ctx context.Context, scope access.Scope, namespace string, kinds []models.EntryKind) ([]string, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	clause, args, _ := where(scope, namespace, kinds)
	return r.deleteReturningBlobs(ctx, `DELETE FROM storage_entries WHERE `+clause+` RETURNING blob_key`, args...)
}

func (r *PostgresRepository) DeleteBySession(ctx context.Context, sessionID string) ([]string, error) {
	return r.deleteReturningBlobs(ctx, `DELETE FROM storage_entries WHERE session_id = $1 RETURNING blob_key`, sessionID)
}

func (r *PostgresRepository) deleteReturningBlobs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k sql.NullString
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if k.Valid {
			keys = append(keys, k.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return keys, nil
}
