package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/dmitrijs2005/accountctx/internal/server/metrics"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/repomanager"
	"github.com/oklog/ulid/v2"
)

// SessionIDPrefix marks session identifiers.
const SessionIDPrefix = "sess_"

// SessionPurger drops storage entries tied to a destroyed session.
type SessionPurger interface {
	PurgeSession(ctx context.Context, sessionID string) error
}

// SessionService manages sessions with a fixed time-to-live. Only Touch
// extends a session; Validate never does.
type SessionService struct {
	repomanager repomanager.RepositoryManager
	purger      SessionPurger
	ttl         time.Duration
	metrics     *metrics.Metrics
	log         logging.Logger
	now         func() time.Time
}

func NewSessionService(m repomanager.RepositoryManager, purger SessionPurger, ttl time.Duration,
	mt *metrics.Metrics, log logging.Logger) *SessionService {
	return &SessionService{
		repomanager: m,
		purger:      purger,
		ttl:         ttl,
		metrics:     mt,
		log:         log.With("module", "sessions"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func newSessionID() string {
	return SessionIDPrefix + ulid.Make().String()
}

// Create starts a new session bound to (user, account).
func (s *SessionService) Create(ctx context.Context, userID, accountID string, meta models.ClientMeta) (*models.Session, error) {
	now := s.now()
	sess := &models.Session{
		ID:             newSessionID(),
		UserID:         userID,
		AccountID:      accountID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
		LastActivityAt: now,
		Client:         meta,
	}
	if err := s.repomanager.Repos().Sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate returns a live session. An expired session is destroyed on the
// spot and reported as common.ErrorNotFound.
func (s *SessionService) Validate(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, common.ErrorNotFound
	}
	sess, err := s.repomanager.Repos().Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		if err := s.Destroy(ctx, id); err != nil {
			s.log.Warn(ctx, "lazy session expiry failed", "session_id", id, "error", err)
		} else {
			s.metrics.SessionsPurged.Inc()
		}
		return nil, common.ErrorNotFound
	}
	return sess, nil
}

// Touch records activity and pushes expiry out by the TTL.
func (s *SessionService) Touch(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.Validate(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.repomanager.Repos().Sessions.Touch(ctx, id, now, now.Add(s.ttl)); err != nil {
		return nil, err
	}
	sess.LastActivityAt, sess.ExpiresAt = now, now.Add(s.ttl)
	return sess, nil
}

// Destroy deletes the session and its session-scoped storage. Destroying an
// absent session is not an error.
func (s *SessionService) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.repomanager.Repos().Sessions.Delete(ctx, id); err != nil {
		return err
	}
	return s.purger.PurgeSession(ctx, id)
}

// PurgeExpired destroys every expired session and returns how many went.
func (s *SessionService) PurgeExpired(ctx context.Context) (int, error) {
	ids, err := s.repomanager.Repos().Sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, id := range ids {
		if err := s.purger.PurgeSession(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	s.metrics.SessionsPurged.Add(float64(len(ids)))
	if len(ids) > 0 {
		s.log.Info(ctx, "expired sessions purged", "count", len(ids))
	}
	return len(ids), errors.Join(errs...)
}

// RunSweeper purges expired sessions every interval until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeExpired(ctx); err != nil {
				s.log.Error(ctx, "session sweep failed", "error", err)
			}
		}
	}
}
