package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/cryptox"
	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/dmitrijs2005/accountctx/internal/server/access"
	"github.com/dmitrijs2005/accountctx/internal/server/lock"
	"github.com/dmitrijs2005/accountctx/internal/server/metrics"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountctx/internal/server/storagectx"
	"github.com/dmitrijs2005/accountctx/internal/server/workingset"
	"github.com/google/uuid"
)

const (
	maxNameLength        = 128
	maxDescriptionLength = 1024
	namespaceBytes       = 32
)

// Sort keys and orders accepted by List.
const (
	SortByName      = "name"
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// AccountFilter narrows List. Query matches name or description,
// case-insensitively.
type AccountFilter struct {
	Query     string
	Protected *bool
}

type ListOptions struct {
	SortBy string
	Order  string
	Filter AccountFilter
}

// AccountService is the account store: encrypted metadata, ownership-scoped
// reads and the two-phase delete.
type AccountService struct {
	repomanager repomanager.RepositoryManager
	guard       *access.Guard
	keys        *cryptox.KeyService
	codec       *cryptox.Codec
	storage     *storagectx.Store
	active      workingset.Store
	locker      lock.Locker
	metrics     *metrics.Metrics
	log         logging.Logger
	now         func() time.Time
}

func NewAccountService(m repomanager.RepositoryManager, guard *access.Guard, keys *cryptox.KeyService,
	codec *cryptox.Codec, storage *storagectx.Store, active workingset.Store, locker lock.Locker,
	mt *metrics.Metrics, log logging.Logger) *AccountService {
	return &AccountService{
		repomanager: m,
		guard:       guard,
		keys:        keys,
		codec:       codec,
		storage:     storage,
		active:      active,
		locker:      locker,
		metrics:     mt,
		log:         log.With("module", "accounts"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name is required: %w", common.ErrorValidation)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("name longer than %d characters: %w", maxNameLength, common.ErrorValidation)
	}
	return name, nil
}

func validateDescription(d string) error {
	if utf8.RuneCountInString(d) > maxDescriptionLength {
		return fmt.Errorf("description longer than %d characters: %w", maxDescriptionLength, common.ErrorValidation)
	}
	return nil
}

// seal encrypts name and description with the account's own key.
func (s *AccountService) seal(a *models.Account) error {
	key, err := s.keys.DeriveKey(cryptox.Scope{UserID: a.UserID, AccountID: a.ID})
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	if a.EncryptedName, err = s.codec.Encrypt([]byte(a.Name), key); err != nil {
		return err
	}
	a.EncryptedDescription = nil
	if a.Description != "" {
		if a.EncryptedDescription, err = s.codec.Encrypt([]byte(a.Description), key); err != nil {
			return err
		}
	}
	return nil
}

func (s *AccountService) open(a *models.Account) error {
	key, err := s.keys.DeriveKey(cryptox.Scope{UserID: a.UserID, AccountID: a.ID})
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	name, err := s.codec.Decrypt(a.EncryptedName, key)
	if err != nil {
		return fmt.Errorf("account %s name: %w", a.ID, err)
	}
	a.Name = string(name)
	a.Description = ""
	if len(a.EncryptedDescription) > 0 {
		d, err := s.codec.Decrypt(a.EncryptedDescription, key)
		if err != nil {
			return fmt.Errorf("account %s description: %w", a.ID, err)
		}
		a.Description = string(d)
	}
	return nil
}

// Create stores a new account. The namespace token is minted here and
// never changes.
func (s *AccountService) Create(ctx context.Context, userID, name, description string, proxyConfigID *string) (*models.Account, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}
	if proxyConfigID != nil {
		if _, err := s.guard.Proxy(ctx, userID, *proxyConfigID); err != nil {
			return nil, err
		}
	}

	ns, err := common.MakeRandHexString(namespaceBytes)
	if err != nil {
		return nil, common.ErrorInternal
	}

	a := &models.Account{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          name,
		Description:   description,
		ProxyConfigID: proxyConfigID,
		Namespace:     ns,
	}
	if err := s.seal(a); err != nil {
		return nil, err
	}

	created, err := s.repomanager.Repos().Accounts.Create(ctx, a)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "account created", "user_id", userID, "account_id", created.ID)
	return created, nil
}

func (s *AccountService) Get(ctx context.Context, userID, accountID string) (*models.Account, error) {
	a, err := s.guard.Account(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.open(a); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns the caller's live accounts. Sorting and filtering by name
// happen after decryption since the database only sees ciphertext.
func (s *AccountService) List(ctx context.Context, userID string, opts ListOptions) ([]*models.Account, error) {
	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = SortByCreatedAt
	}
	order := strings.ToLower(opts.Order)
	if order == "" {
		order = OrderAsc
	}
	if order != OrderAsc && order != OrderDesc {
		return nil, fmt.Errorf("unknown order %q: %w", opts.Order, common.ErrorValidation)
	}

	var less func(a, b *models.Account) bool
	switch sortBy {
	case SortByName:
		less = func(a, b *models.Account) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case SortByCreatedAt:
		less = func(a, b *models.Account) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortByUpdatedAt:
		less = func(a, b *models.Account) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	default:
		return nil, fmt.Errorf("unknown sort key %q: %w", opts.SortBy, common.ErrorValidation)
	}

	all, err := s.repomanager.Repos().Accounts.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(opts.Filter.Query))
	result := make([]*models.Account, 0, len(all))
	for _, a := range all {
		if err := s.open(a); err != nil {
			return nil, err
		}
		if opts.Filter.Protected != nil && a.Protected != *opts.Filter.Protected {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(a.Name), q) && !strings.Contains(strings.ToLower(a.Description), q) {
			continue
		}
		result = append(result, a)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if order == OrderDesc {
			return less(result[j], result[i])
		}
		return less(result[i], result[j])
	})
	return result, nil
}

// Update applies patch after re-reading the account under the caller's
// ownership. The namespace is never part of a patch.
func (s *AccountService) Update(ctx context.Context, userID, accountID string, patch models.AccountPatch) (*models.Account, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("empty patch: %w", common.ErrorValidation)
	}
	if patch.Name != nil {
		name, err := validateName(*patch.Name)
		if err != nil {
			return nil, err
		}
		patch.Name = &name
	}
	if patch.Description != nil {
		if err := validateDescription(*patch.Description); err != nil {
			return nil, err
		}
	}

	a, err := s.Get(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	if patch.Protected != nil {
		a.Protected = *patch.Protected
	}
	switch {
	case patch.ClearProxy:
		a.ProxyConfigID = nil
	case patch.ProxyConfigID != nil:
		if _, err := s.guard.Proxy(ctx, userID, *patch.ProxyConfigID); err != nil {
			return nil, err
		}
		a.ProxyConfigID = patch.ProxyConfigID
	}

	if err := s.seal(a); err != nil {
		return nil, err
	}
	updated, err := s.repomanager.Repos().Accounts.Update(ctx, a)
	if err != nil {
		return nil, err
	}
	if patch.ClearProxy || patch.ProxyConfigID != nil {
		if err := s.syncActiveProxy(ctx, userID, accountID, a.ProxyConfigID); err != nil {
			return nil, fmt.Errorf("active context: %w", err)
		}
	}
	return updated, nil
}

// syncActiveProxy copies a proxy change into the working set when the
// account is the active one, so the next switch sees no stale proxy.
func (s *AccountService) syncActiveProxy(ctx context.Context, userID, accountID string, proxyConfigID *string) error {
	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	ac, err := s.active.Get(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if ac.AccountID != accountID {
		return nil
	}

	ac.ProxyConfigID = nil
	if proxyConfigID != nil {
		p := *proxyConfigID
		ac.ProxyConfigID = &p
	}
	return s.active.Set(ctx, ac)
}

// AssignProxy attaches (or, with a nil id, detaches) a proxy configuration.
func (s *AccountService) AssignProxy(ctx context.Context, userID, accountID string, proxyConfigID *string) (*models.Account, error) {
	if proxyConfigID == nil {
		return s.Update(ctx, userID, accountID, models.AccountPatch{ClearProxy: true})
	}
	return s.Update(ctx, userID, accountID, models.AccountPatch{ProxyConfigID: proxyConfigID})
}

// Delete soft-deletes the account, drops it from the working set if it is
// active, then cascades to storage, sessions and tabs. A failed cascade
// leaves the account pending; ResumePendingDeletes finishes it later.
func (s *AccountService) Delete(ctx context.Context, userID, accountID string) error {
	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return err
	}

	a, err := s.repomanager.Repos().Accounts.MarkDeleting(ctx, userID, accountID, s.now())
	if err != nil {
		unlock()
		return err
	}

	ac, err := s.active.Get(ctx, userID)
	switch {
	case err == nil && ac.AccountID == accountID:
		if err := s.active.Clear(ctx, userID); err != nil {
			s.log.Warn(ctx, "could not clear working set of deleted account", "user_id", userID, "account_id", accountID, "error", err)
		} else {
			s.metrics.ActiveContexts.Dec()
		}
	case err != nil && !errors.Is(err, common.ErrorNotFound):
		s.log.Warn(ctx, "could not read working set", "user_id", userID, "error", err)
	}
	unlock()

	if err := s.cascade(context.WithoutCancel(ctx), a); err != nil {
		s.metrics.DeletesTotal.WithLabelValues(metrics.ResultFailed).Inc()
		s.log.Error(ctx, "account delete left pending", "user_id", userID, "account_id", accountID, "error", err)
		return nil
	}
	s.metrics.DeletesTotal.WithLabelValues(metrics.ResultOK).Inc()
	s.log.Info(ctx, "account deleted", "user_id", userID, "account_id", accountID)
	return nil
}

// cascade is phase two of Delete. Every step is idempotent so it can be
// re-run on a pending account.
func (s *AccountService) cascade(ctx context.Context, a *models.Account) error {
	// the deleted account's own identity authorizes clearing its namespace
	authority := workingset.New(a.UserID, a.ID, a.Namespace)
	if err := s.storage.Clear(ctx, authority, a.Namespace); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	r := s.repomanager.Repos()
	if _, err := r.Sessions.DeleteByAccount(ctx, a.ID); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if err := r.Tabs.DeleteByAccount(ctx, a.ID); err != nil {
		return fmt.Errorf("tabs: %w", err)
	}
	if err := r.Accounts.MarkDeleted(ctx, a.ID); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	return nil
}

// ResumePendingDeletes completes every delete whose cascade failed earlier.
func (s *AccountService) ResumePendingDeletes(ctx context.Context) (int, error) {
	pending, err := s.repomanager.Repos().Accounts.ListPendingDeletes(ctx)
	if err != nil {
		return 0, err
	}

	done := 0
	var errs []error
	for _, a := range pending {
		if err := s.cascade(ctx, a); err != nil {
			s.metrics.DeletesTotal.WithLabelValues(metrics.ResultFailed).Inc()
			errs = append(errs, fmt.Errorf("account %s: %w", a.ID, err))
			continue
		}
		s.metrics.DeletesTotal.WithLabelValues(metrics.ResultOK).Inc()
		done++
	}
	if done > 0 {
		s.log.Info(ctx, "pending deletes completed", "count", done)
	}
	return done, errors.Join(errs...)
}

// RunDeleteSweeper calls ResumePendingDeletes every interval until ctx is
// done.
func (s *AccountService) RunDeleteSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ResumePendingDeletes(ctx); err != nil {
				s.log.Error(ctx, "delete sweep failed", "error", err)
			}
		}
	}
}
