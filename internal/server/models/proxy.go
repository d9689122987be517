package models

import "time"

// ProxyConfig is an egress configuration that can be attached to an account.
// Its contents are opaque here; only the id travels with the account context.
type ProxyConfig struct {
	ID        string
	UserID    string
	Kind      string
	Address   string
	CreatedAt time.Time
}
