package models

import "time"

// ClientMeta is what the transport knows about the device behind a session.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Session binds a user to one active account.
type Session struct {
	ID             string
	UserID         string
	AccountID      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	Client         ClientMeta
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
