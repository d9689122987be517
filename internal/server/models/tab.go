package models

import "time"

// Tab is an open browser tab belonging to one account.
type Tab struct {
	ID        string
	UserID    string
	AccountID string
	URL       string
	Title     string
	Position  int
	CreatedAt time.Time
}
