// Package switcher implements the context switch: save the outgoing
// account's working set, clear it, then load the target account and bind a
// fresh session to it. The coordinator is the single authority on which
// account is active for a user.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/lock"
	"github.com/dmitrijs2005/accountctx/internal/server/metrics"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/storagectx"
	"github.com/dmitrijs2005/accountctx/internal/server/workingset"
	"github.com/sethvargo/go-retry"
)

// Verifier checks the secondary verification token of a protected account.
type Verifier interface {
	Verify(ctx context.Context, userID, accountID, token string) error
}

// Sessions creates and destroys the sessions a switch binds.
type Sessions interface {
	Create(ctx context.Context, userID, accountID string, meta models.ClientMeta) (*models.Session, error)
	Destroy(ctx context.Context, id string) error
}

type Request struct {
	UserID            string
	AccountID         string
	VerificationToken string
	Client            models.ClientMeta
}

// Result describes the context a switch left active. It is filled while
// the per-user lock is still held.
type Result struct {
	AccountID     string
	SessionID     string
	Namespace     string
	ProxyConfigID *string
}

type Options struct {
	// LoadAttempts bounds how many times Loading runs before the switch
	// gives up with no account active.
	LoadAttempts int
	LoadBackoff  time.Duration
	// LockWait bounds how long a switch waits for storage calls holding
	// the per-user lock. Another switch in flight is a conflict at once.
	LockWait time.Duration
}

// switchKey names the lock only switches take, so a switch conflicts with
// another switch but merely queues behind storage calls on the user key.
func switchKey(userID string) string {
	return "switch:" + userID
}

type Coordinator struct {
	guard    *access.Guard
	verifier Verifier
	sessions Sessions
	store    *storagectx.Store
	active   workingset.Store
	locker   lock.Locker
	metrics  *metrics.Metrics
	log      logging.Logger
	opts     Options

	// entered is called as each stage starts. Tests use it to interleave.
	entered func(userID string, s State)
}

func NewCoordinator(guard *access.Guard, verifier Verifier, sessions Sessions, store *storagectx.Store,
	active workingset.Store, locker lock.Locker, mt *metrics.Metrics, log logging.Logger, opts Options) *Coordinator {
	if opts.LoadAttempts < 1 {
		opts.LoadAttempts = 1
	}
	if opts.LoadBackoff <= 0 {
		opts.LoadBackoff = 50 * time.Millisecond
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 2 * time.Second
	}
	return &Coordinator{
		guard:    guard,
		verifier: verifier,
		sessions: sessions,
		store:    store,
		active:   active,
		locker:   locker,
		metrics:  mt,
		log:      log.With("module", "switcher"),
		opts:     opts,
		entered:  func(string, State) {},
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, common.ErrorConflict):
		return metrics.ResultConflict
	case errors.Is(err, common.ErrorForbidden):
		return metrics.ResultForbidden
	case errors.Is(err, common.ErrorNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultAborted
	default:
		return metrics.ResultFailed
	}
}

// Switch makes req.AccountID the user's active account.
//
// Errors: common.ErrorNotFound when the target is absent or foreign,
// common.ErrorForbidden when a protected target lacks a valid verification
// token, common.ErrorConflict when another switch for the user is in
// flight. A failed or cancelled save leaves the outgoing account active. A
// Loading failure that survives every retry returns common.ErrorInternal
// and leaves no account active.
func (c *Coordinator) Switch(ctx context.Context, req Request) (res *Result, err error) {
	defer func() {
		c.metrics.SwitchesTotal.WithLabelValues(resultOf(err)).Inc()
	}()

	if req.UserID == "" || req.AccountID == "" {
		return nil, fmt.Errorf("user and account are required: %w", common.ErrorValidation)
	}

	unlock, err := c.acquire(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	target, err := c.guard.Account(ctx, req.UserID, req.AccountID)
	if err != nil {
		return nil, err
	}
	if target.Protected {
		if err := c.verifier.Verify(ctx, req.UserID, target.ID, req.VerificationToken); err != nil {
			return nil, err
		}
	}

	cur, err := c.current(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if err := c.save(ctx, cur); err != nil {
		c.log.Warn(ctx, "switch aborted while saving", "user_id", req.UserID, "account_id", req.AccountID, "error", err)
		return nil, err
	}

	// Past this point the switch runs to a terminal state.
	ctx = context.WithoutCancel(ctx)

	if err := c.clear(ctx, req.UserID, cur); err != nil {
		c.log.Error(ctx, "switch failed while clearing", "user_id", req.UserID, "error", err)
		return nil, fmt.Errorf("clearing outgoing account: %w", common.ErrorInternal)
	}

	ac, err := c.load(ctx, target, req.Client, "")
	if err != nil {
		c.log.Error(ctx, "switch failed while loading", "user_id", req.UserID, "account_id", target.ID,
			"attempts", c.opts.LoadAttempts, "error", err)
		// nothing may stay half-loaded
		if err := c.active.Clear(ctx, req.UserID); err != nil {
			c.log.Error(ctx, "could not clear after failed load", "user_id", req.UserID, "error", err)
		}
		return nil, fmt.Errorf("loading account: %w", common.ErrorInternal)
	}
	c.entered(req.UserID, Idle)

	c.log.Info(ctx, "account switched", "user_id", req.UserID, "account_id", target.ID, "session_id", ac.SessionID)
	return &Result{AccountID: ac.AccountID, SessionID: ac.SessionID, Namespace: ac.Namespace, ProxyConfigID: ac.ProxyConfigID}, nil
}

// acquire takes the switch key without waiting, then the user key with a
// bounded wait.
func (c *Coordinator) acquire(ctx context.Context, userID string) (lock.Unlock, error) {
	unlockSwitch, err := c.locker.TryLock(ctx, switchKey(userID))
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, fmt.Errorf("switch already in progress: %w", common.ErrorConflict)
		}
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.opts.LockWait)
	defer cancel()
	unlockUser, err := c.locker.Lock(waitCtx, userID)
	if err != nil {
		unlockSwitch()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if waitCtx.Err() != nil {
			return nil, fmt.Errorf("account context busy: %w", common.ErrorConflict)
		}
		return nil, err
	}
	return func() {
		unlockUser()
		unlockSwitch()
	}, nil
}

// current returns the active context or nil when none is active.
func (c *Coordinator) current(ctx context.Context, userID string) (*workingset.ActiveContext, error) {
	ac, err := c.active.Get(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return ac, err
}

// save persists the outgoing working set. Cancellation is honoured up to
// its end.
func (c *Coordinator) save(ctx context.Context, cur *workingset.ActiveContext) error {
	if cur == nil {
		return ctx.Err()
	}
	c.entered(cur.UserID, Saving)
	defer c.metrics.ObserveStage(Saving.String(), time.Now())

	if err := c.store.Snapshot(ctx, cur); err != nil {
		return fmt.Errorf("saving account %s: %w", cur.AccountID, err)
	}
	return ctx.Err()
}

// clear removes the outgoing account from the working set and destroys its
// session. Running it on an already clear user is a no-op.
func (c *Coordinator) clear(ctx context.Context, userID string, cur *workingset.ActiveContext) error {
	c.entered(userID, Clearing)
	defer c.metrics.ObserveStage(Clearing.String(), time.Now())

	if err := c.active.Clear(ctx, userID); err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	c.metrics.ActiveContexts.Dec()
	if cur.SessionID != "" {
		if err := c.sessions.Destroy(ctx, cur.SessionID); err != nil {
			return fmt.Errorf("destroying session: %w", err)
		}
	}
	return nil
}

// load materializes target into the working set. With an empty sessionID a
// new session is created; otherwise the given one is rebound.
func (c *Coordinator) load(ctx context.Context, target *models.Account, meta models.ClientMeta, sessionID string) (*workingset.ActiveContext, error) {
	c.entered(target.UserID, Loading)
	defer c.metrics.ObserveStage(Loading.String(), time.Now())

	backoff := retry.WithMaxRetries(uint64(c.opts.LoadAttempts-1), retry.NewConstant(c.opts.LoadBackoff))

	var ac *workingset.ActiveContext
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.metrics.LoadRetries.Inc()
		}

		next := workingset.New(target.UserID, target.ID, target.Namespace)
		next.ProxyConfigID = target.ProxyConfigID
		if err := c.store.Load(ctx, next); err != nil {
			if errors.Is(err, common.ErrIsolationViolation) {
				return err
			}
			return retry.RetryableError(err)
		}

		next.SessionID = sessionID
		if sessionID == "" {
			sess, err := c.sessions.Create(ctx, target.UserID, target.ID, meta)
			if err != nil {
				return retry.RetryableError(err)
			}
			next.SessionID = sess.ID
		}

		if err := c.active.Set(ctx, next); err != nil {
			if sessionID == "" {
				if derr := c.sessions.Destroy(ctx, next.SessionID); derr != nil {
					c.log.Warn(ctx, "could not destroy orphan session", "session_id", next.SessionID, "error", derr)
				}
			}
			return retry.RetryableError(err)
		}
		ac = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.metrics.ActiveContexts.Inc()
	return ac, nil
}

// Deactivate saves and clears the user's active account, destroying its
// session. It is a no-op when nothing is active.
func (c *Coordinator) Deactivate(ctx context.Context, userID string) error {
	unlock, err := c.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	cur, err := c.current(ctx, userID)
	if err != nil || cur == nil {
		return err
	}
	if err := c.save(ctx, cur); err != nil {
		return err
	}
	if err := c.clear(context.WithoutCancel(ctx), userID, cur); err != nil {
		return fmt.Errorf("clearing account: %w", common.ErrorInternal)
	}
	c.log.Info(ctx, "account deactivated", "user_id", userID, "account_id", cur.AccountID)
	return nil
}

// Active returns the user's active context, or storagectx.ErrNoActiveAccount.
func (c *Coordinator) Active(ctx context.Context, userID string) (*workingset.ActiveContext, error) {
	ac, err := c.current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ac == nil {
		return nil, storagectx.ErrNoActiveAccount
	}
	return ac, nil
}

// Resume rebuilds the working set for a live session after it was lost,
// for example by a restart of an instance holding it in memory. A session
// whose account is no longer the active one is reported as
// common.ErrorNotFound.
func (c *Coordinator) Resume(ctx context.Context, sess *models.Session) (*workingset.ActiveContext, error) {
	unlock, err := c.locker.Lock(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := c.current(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		if cur.AccountID != sess.AccountID {
			return nil, fmt.Errorf("session %s is not bound to the active account: %w", sess.ID, common.ErrorNotFound)
		}
		return cur, nil
	}

	target, err := c.guard.Account(ctx, sess.UserID, sess.AccountID)
	if err != nil {
		return nil, err
	}
	ac, err := c.load(ctx, target, sess.Client, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("resuming account: %w", common.ErrorInternal)
	}
	c.log.Info(ctx, "account context resumed", "user_id", sess.UserID, "account_id", target.ID, "session_id", sess.ID)
	return ac, nil
}
