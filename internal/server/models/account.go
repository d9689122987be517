package models

import "time"

// Delete states of an account. An account with DeleteStatePending has been
// soft-deleted but its storage, sessions and tabs may still exist.
const (
	DeleteStateNone    = ""
	DeleteStatePending = "pending"
	DeleteStateDone    = "done"
)

// Account is a browsing identity owned by a user. Name and Description are
// only ever stored encrypted; the plaintext fields are filled in by the
// account service after decryption and are never written to the database.
type Account struct {
	ID                   string
	UserID               string
	Name                 string
	Description          string
	EncryptedName        []byte
	EncryptedDescription []byte
	Protected            bool
	ProxyConfigID        *string
	// Namespace scopes every storage entry of the account. Immutable, and
	// never reissued even after the account is deleted.
	Namespace   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	DeleteState string
}

// Deleted reports whether the account has been soft-deleted.
func (a *Account) Deleted() bool {
	return a.DeletedAt != nil
}

// AccountPatch carries the fields an update may change. Nil means keep.
type AccountPatch struct {
	Name          *string
	Description   *string
	Protected     *bool
	ProxyConfigID *string
	// ClearProxy detaches the proxy configuration; it wins over ProxyConfigID.
	ClearProxy bool
}

// Empty reports whether the patch changes nothing.
func (p AccountPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Protected == nil && p.ProxyConfigID == nil && !p.ClearProxy
}
