package storagectx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/lock"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/workingset"
)

// ErrNoActiveAccount is returned when the user has no account selected,
// e.g. after logout or an exhausted switch.
var ErrNoActiveAccount = fmt.Errorf("no active account: %w", common.ErrorNotFound)

// ErrNoSession is returned when the calling session is not live or is no
// longer the one bound to the active account.
var ErrNoSession = fmt.Errorf("no live session for the active account: %w", common.ErrorNotFound)

// Sessions resolves the calling session.
type Sessions interface {
	Validate(ctx context.Context, id string) (*models.Session, error)
}

// PutInput is one value written through the Service.
type PutInput struct {
	Kind          models.EntryKind
	Key           string
	Value         []byte
	SessionScoped bool
	ExpiresAt     *time.Time
}

// Service is the caller-facing storage API. It works on the user's active
// working set under the per-user lock and writes through to the durable
// Store, so a crash between switches loses nothing. Every call names the
// session it is made from, and only the session bound to the active account
// may touch that account's namespace.
type Service struct {
	active   workingset.Store
	locker   lock.Locker
	store    *Store
	sessions Sessions
	now      func() time.Time
}

func NewService(active workingset.Store, locker lock.Locker, store *Store, sessions Sessions) *Service {
	return &Service{
		active:   active,
		locker:   locker,
		store:    store,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// withActive runs fn on the user's active context while holding the lock.
// Waiting for the lock means a concurrent switch finishes first, so fn
// always sees the post-switch namespace. The session must be live, belong
// to userID and be the one the active context was loaded for.
func (s *Service) withActive(ctx context.Context, userID, sessionID, op string, fn func(ac *workingset.ActiveContext) error) error {
	sess, err := s.sessions.Validate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrNoSession
		}
		return err
	}
	if sess.UserID != userID {
		return s.store.violation(ctx, userID, op, "session owned by another user", "session_id", sess.ID)
	}

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	ac, err := s.active.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrNoActiveAccount
		}
		return err
	}
	if ac.SessionID != sess.ID {
		return ErrNoSession
	}
	return fn(ac)
}

func (s *Service) Put(ctx context.Context, userID, sessionID, namespace string, in PutInput) error {
	if in.Key == "" {
		return fmt.Errorf("empty key: %w", common.ErrorValidation)
	}
	return s.withActive(ctx, userID, sessionID, "put", func(ac *workingset.ActiveContext) error {
		if err := s.store.Check(ctx, ac, namespace, "put"); err != nil {
			return err
		}
		e := workingset.Entry{Value: in.Value, SessionScoped: in.SessionScoped, ExpiresAt: in.ExpiresAt}
		if err := s.store.Put(ctx, ac, namespace, in.Kind, in.Key, e); err != nil {
			return err
		}
		ac.Put(in.Kind, in.Key, e)
		return s.active.Set(ctx, ac)
	})
}

// GetAll reads from the working set, which is authoritative while the
// account is active.
func (s *Service) GetAll(ctx context.Context, userID, sessionID, namespace string, kind models.EntryKind) ([]workingset.Item, error) {
	var items []workingset.Item
	err := s.withActive(ctx, userID, sessionID, "get_all", func(ac *workingset.ActiveContext) error {
		if err := s.store.Check(ctx, ac, namespace, "get_all"); err != nil {
			return err
		}
		items = ac.List(kind, s.now())
		return nil
	})
	return items, err
}

// Clear empties the given kinds, or all of them, in both the working set
// and durable storage.
func (s *Service) Clear(ctx context.Context, userID, sessionID, namespace string, kinds ...models.EntryKind) error {
	return s.withActive(ctx, userID, sessionID, "clear", func(ac *workingset.ActiveContext) error {
		if err := s.store.Clear(ctx, ac, namespace, kinds...); err != nil {
			return err
		}
		ac.Clear(kinds...)
		return s.active.Set(ctx, ac)
	})
}
