package models

import "time"

// Generation is one recorded palette creation. Rows are never updated.
type Generation struct {
	ID        string
	UserID    string
	Colors    []string
	Harmony   string
	Source    string
	CreatedAt time.Time
}

// CreditBalance is created lazily with a zero balance and never goes
// below zero.
type CreditBalance struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}
