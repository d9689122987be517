// Package workingset holds the ephemeral side of an account context: which
// account is active for a user right now, and the cookies, cache, local and
// session maps materialized for it. There is one ActiveContext per user and
// no process-wide jar, so switches for different users never touch the same
// value.
package workingset

import (
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/server/models"
)

// Entry is one ephemeral storage value. Values are plaintext here; they are
// sealed on their way to durable storage.
type Entry struct {
	Value         []byte     `json:"value"`
	SessionScoped bool       `json:"session_scoped,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Item is an Entry together with its key, as returned by List.
type Item struct {
	Key string
	Entry
}

// ActiveContext is the working set of the account currently active for a
// user.
type ActiveContext struct {
	UserID        string                                `json:"user_id"`
	AccountID     string                                `json:"account_id"`
	Namespace     string                                `json:"namespace"`
	SessionID     string                                `json:"session_id"`
	ProxyConfigID *string                               `json:"proxy_config_id,omitempty"`
	ActivatedAt   time.Time                             `json:"activated_at"`
	Entries       map[models.EntryKind]map[string]Entry `json:"entries"`
}

func New(userID, accountID, namespace string) *ActiveContext {
	return &ActiveContext{
		UserID:      userID,
		AccountID:   accountID,
		Namespace:   namespace,
		ActivatedAt: time.Now().UTC(),
		Entries:     map[models.EntryKind]map[string]Entry{},
	}
}

func (a *ActiveContext) Put(kind models.EntryKind, key string, e Entry) {
	if a.Entries == nil {
		a.Entries = map[models.EntryKind]map[string]Entry{}
	}
	m, ok := a.Entries[kind]
	if !ok {
		m = map[string]Entry{}
		a.Entries[kind] = m
	}
	m[key] = e
}

// List returns the live entries of one kind sorted by key.
func (a *ActiveContext) List(kind models.EntryKind, now time.Time) []Item {
	var items []Item
	for k, e := range a.Entries[kind] {
		if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
			continue
		}
		items = append(items, Item{Key: k, Entry: e})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items
}

// Clear drops the entries of the given kinds, or of every kind when none
// are given.
func (a *ActiveContext) Clear(kinds ...models.EntryKind) {
	if len(kinds) == 0 {
		a.Entries = map[models.EntryKind]map[string]Entry{}
		return
	}
	for _, k := range kinds {
		delete(a.Entries, k)
	}
}

// Len counts entries across all kinds.
func (a *ActiveContext) Len() int {
	n := 0
	for _, m := range a.Entries {
		n += len(m)
	}
	return n
}

// Clone returns a deep copy.
func (a *ActiveContext) Clone() *ActiveContext {
	c := *a
	if a.ProxyConfigID != nil {
		p := *a.ProxyConfigID
		c.ProxyConfigID = &p
	}
	c.Entries = make(map[models.EntryKind]map[string]Entry, len(a.Entries))
	for kind, m := range a.Entries {
		cm := make(map[string]Entry, len(m))
		for k, e := range m {
			e.Value = append([]byte(nil), e.Value...)
			if e.ExpiresAt != nil {
				t := *e.ExpiresAt
				e.ExpiresAt = &t
			}
			cm[k] = e
		}
		c.Entries[kind] = cm
	}
	return &c
}

// Store keeps at most one ActiveContext per user.
type Store interface {
	// Get returns the user's active context or common.ErrorNotFound.
	Get(ctx context.Context, userID string) (*ActiveContext, error)
	Set(ctx context.Context, ac *ActiveContext) error
	// Clear removes the user's active context. Clearing an absent context is
	// a no-op.
	Clear(ctx context.Context, userID string) error
}
