package models

import (
	"fmt"
	"time"
)

// EntryKind is the kind of browser state a storage entry represents.
type EntryKind string

const (
	KindCookie  EntryKind = "cookie"
	KindCache   EntryKind = "cache"
	KindLocal   EntryKind = "local"
	KindSession EntryKind = "session"
)

// AllKinds lists every entry kind in a stable order.
var AllKinds = []EntryKind{KindCookie, KindCache, KindLocal, KindSession}

// ParseEntryKind validates s as an EntryKind.
func ParseEntryKind(s string) (EntryKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown storage kind %q", s)
}

// StorageEntry is a durable key/value record scoped to one account namespace.
type StorageEntry struct {
	UserID    string
	AccountID string
	Namespace string
	Kind      EntryKind
	Key       string
	// EncryptedValue holds the sealed value, or nothing when BlobKey is set.
	EncryptedValue []byte
	// BlobKey points at the sealed value in object storage.
	BlobKey *string
	// SessionID marks a session-scoped entry (session cookie, sessionStorage);
	// it is purged when that session is destroyed.
	SessionID *string
	ExpiresAt *time.Time
	UpdatedAt time.Time
}
