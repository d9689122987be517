// Package storagectx is the per-account storage context: the durable,
// encrypted home of an account's cookies, cache, local and session entries,
// and the caller-facing API over the active working set.
//
// Every call names the namespace it wants and carries the ActiveContext
// that authorizes it. A namespace other than the active one is rejected with
// common.ErrIsolationViolation before any data is touched.
package storagectx

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/cryptox"
	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/blobstore"
	"github.com/dmitrijs2005/accountctx/internal/server/metrics"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountctx/internal/server/workingset"
)

// Entry is a decrypted durable entry.
type Entry struct {
	Kind models.EntryKind
	Key  string
	workingset.Entry
}

// Options tunes a Store. A nil Blobs keeps every value in the database.
type Options struct {
	Blobs         blobstore.Store
	BlobThreshold int
}

// Store reads and writes durable entries for the namespace of an active
// context. Values are sealed with the (user, account) key.
type Store struct {
	repos     repomanager.RepositoryManager
	keys      *cryptox.KeyService
	codec     *cryptox.Codec
	blobs     blobstore.Store
	threshold int
	metrics   *metrics.Metrics
	log       logging.Logger
	now       func() time.Time
}

func NewStore(repos repomanager.RepositoryManager, keys *cryptox.KeyService, codec *cryptox.Codec,
	m *metrics.Metrics, log logging.Logger, opts Options) *Store {
	return &Store{
		repos:     repos,
		keys:      keys,
		codec:     codec,
		blobs:     opts.Blobs,
		threshold: opts.BlobThreshold,
		metrics:   m,
		log:       log.With("module", "storagectx"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Check enforces that namespace is the one active in ac.
func (s *Store) Check(ctx context.Context, ac *workingset.ActiveContext, namespace, op string) error {
	if ac != nil && ac.Namespace != "" && ac.Namespace == namespace {
		return nil
	}

	active := ""
	userID := ""
	if ac != nil {
		active, userID = ac.Namespace, ac.UserID
	}
	return s.violation(ctx, userID, op, fmt.Sprintf("namespace %q", namespace),
		"requested_namespace", namespace, "active_namespace", active)
}

// violation logs and counts one isolation violation and returns the error
// reported to the caller.
func (s *Store) violation(ctx context.Context, userID, op, what string, kv ...any) error {
	s.metrics.IsolationViolations.WithLabelValues(op).Inc()
	s.log.Error(ctx, "isolation violation", append([]any{"op", op, "user_id", userID}, kv...)...)
	return fmt.Errorf("%s on %s: %w", op, what, common.ErrIsolationViolation)
}

func scopeOf(ac *workingset.ActiveContext) access.Scope {
	return access.Scope{UserID: ac.UserID, AccountID: ac.AccountID}
}

func (s *Store) key(ac *workingset.ActiveContext) ([]byte, error) {
	return s.keys.DeriveKey(cryptox.Scope{UserID: ac.UserID, AccountID: ac.AccountID})
}

// seal encrypts one entry and, for large cache values, parks the ciphertext
// in the blob store. The returned blob key is set only when a blob was written.
func (s *Store) seal(ctx context.Context, ac *workingset.ActiveContext, key []byte, kind models.EntryKind,
	name string, e workingset.Entry) (*models.StorageEntry, error) {
	sealed, err := s.codec.Encrypt(e.Value, key)
	if err != nil {
		return nil, err
	}

	row := &models.StorageEntry{
		UserID:    ac.UserID,
		AccountID: ac.AccountID,
		Namespace: ac.Namespace,
		Kind:      kind,
		Key:       name,
		ExpiresAt: e.ExpiresAt,
		UpdatedAt: s.now(),
	}
	if e.SessionScoped && ac.SessionID != "" {
		sid := ac.SessionID
		row.SessionID = &sid
	}

	if s.blobs != nil && s.threshold > 0 && kind == models.KindCache && len(sealed) > s.threshold {
		bk := blobstore.NewKey(ac.Namespace)
		if err := s.blobs.Put(ctx, bk, sealed); err != nil {
			return nil, err
		}
		row.BlobKey = &bk
		return row, nil
	}

	row.EncryptedValue = sealed
	return row, nil
}

func (s *Store) open(ctx context.Context, key []byte, row *models.StorageEntry) (workingset.Entry, error) {
	sealed := row.EncryptedValue
	if row.BlobKey != nil {
		if s.blobs == nil {
			return workingset.Entry{}, fmt.Errorf("entry %s/%s is in blob storage but none is configured: %w", row.Kind, row.Key, common.ErrorInternal)
		}
		b, err := s.blobs.Get(ctx, *row.BlobKey)
		if err != nil {
			return workingset.Entry{}, err
		}
		sealed = b
	}

	value, err := s.codec.Decrypt(sealed, key)
	if err != nil {
		return workingset.Entry{}, err
	}
	return workingset.Entry{Value: value, SessionScoped: row.SessionID != nil, ExpiresAt: row.ExpiresAt}, nil
}

func (s *Store) dropBlobs(ctx context.Context, keys []string) {
	if s.blobs == nil || len(keys) == 0 {
		return
	}
	if err := s.blobs.Delete(ctx, keys...); err != nil {
		s.log.Warn(ctx, "blob cleanup failed", "count", len(keys), "error", err)
	}
}

// Put writes one entry.
func (s *Store) Put(ctx context.Context, ac *workingset.ActiveContext, namespace string, kind models.EntryKind,
	name string, e workingset.Entry) error {
	if err := s.Check(ctx, ac, namespace, "put"); err != nil {
		return err
	}
	key, err := s.key(ac)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	row, err := s.seal(ctx, ac, key, kind, name, e)
	if err != nil {
		return err
	}

	// the previous value of this key may own a blob
	var stale []string
	err = s.repos.WithTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		prev, err := r.Storage.List(ctx, scopeOf(ac), namespace, []models.EntryKind{kind}, time.Time{})
		if err != nil {
			return err
		}
		for _, p := range prev {
			if p.Key == name && p.BlobKey != nil {
				stale = append(stale, *p.BlobKey)
			}
		}
		return r.Storage.Upsert(ctx, row)
	})
	if err != nil {
		if row.BlobKey != nil {
			s.dropBlobs(ctx, []string{*row.BlobKey})
		}
		return err
	}
	s.dropBlobs(ctx, stale)
	return nil
}

// GetAll returns the live durable entries of kind, decrypted.
func (s *Store) GetAll(ctx context.Context, ac *workingset.ActiveContext, namespace string, kind models.EntryKind) ([]Entry, error) {
	if err := s.Check(ctx, ac, namespace, "get_all"); err != nil {
		return nil, err
	}
	return s.read(ctx, ac, []models.EntryKind{kind})
}

func (s *Store) read(ctx context.Context, ac *workingset.ActiveContext, kinds []models.EntryKind) ([]Entry, error) {
	key, err := s.key(ac)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	rows, err := s.repos.Repos().Storage.List(ctx, scopeOf(ac), ac.Namespace, kinds, s.now())
	if err != nil {
		return nil, err
	}

	result := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := s.open(ctx, key, row)
		if err != nil {
			return nil, fmt.Errorf("entry %s/%s: %w", row.Kind, row.Key, err)
		}
		result = append(result, Entry{Kind: row.Kind, Key: row.Key, Entry: e})
	}
	return result, nil
}

// Clear removes the entries of the given kinds, or of every kind.
func (s *Store) Clear(ctx context.Context, ac *workingset.ActiveContext, namespace string, kinds ...models.EntryKind) error {
	if err := s.Check(ctx, ac, namespace, "clear"); err != nil {
		return err
	}
	blobs, err := s.repos.Repos().Storage.DeleteByNamespace(ctx, scopeOf(ac), namespace, kinds)
	if err != nil {
		return err
	}
	s.dropBlobs(ctx, blobs)
	return nil
}

// Snapshot replaces the durable contents of the active namespace with the
// working set in one transaction. Either every entry is saved or none is.
func (s *Store) Snapshot(ctx context.Context, ac *workingset.ActiveContext) error {
	if err := s.Check(ctx, ac, ac.Namespace, "snapshot"); err != nil {
		return err
	}
	key, err := s.key(ac)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	var rows []*models.StorageEntry
	var fresh []string
	abort := func(err error) error {
		s.dropBlobs(ctx, fresh)
		return err
	}

	now := s.now()
	for _, kind := range models.AllKinds {
		for _, item := range ac.List(kind, now) {
			if err := ctx.Err(); err != nil {
				return abort(err)
			}
			row, err := s.seal(ctx, ac, key, kind, item.Key, item.Entry)
			if err != nil {
				return abort(err)
			}
			if row.BlobKey != nil {
				fresh = append(fresh, *row.BlobKey)
			}
			rows = append(rows, row)
		}
	}

	var stale []string
	err = s.repos.WithTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		blobs, err := r.Storage.DeleteByNamespace(ctx, scopeOf(ac), ac.Namespace, nil)
		if err != nil {
			return err
		}
		stale = blobs
		for _, row := range rows {
			if err := r.Storage.Upsert(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return abort(err)
	}
	s.dropBlobs(ctx, stale)
	return nil
}

// Load materializes the durable entries of the active namespace into ac,
// replacing whatever it held.
func (s *Store) Load(ctx context.Context, ac *workingset.ActiveContext) error {
	if err := s.Check(ctx, ac, ac.Namespace, "load"); err != nil {
		return err
	}
	entries, err := s.read(ctx, ac, nil)
	if err != nil {
		return err
	}
	ac.Clear()
	for _, e := range entries {
		ac.Put(e.Kind, e.Key, e.Entry)
	}
	return nil
}

// PurgeSession removes entries tied to a destroyed session. It is
// housekeeping keyed by session id and needs no active context.
func (s *Store) PurgeSession(ctx context.Context, sessionID string) error {
	blobs, err := s.repos.Repos().Storage.DeleteBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.dropBlobs(ctx, blobs)
	return nil
}
