// Package models holds the CLI's local data types.
package models

import "time"

// SourceLocal marks a preview generated while the server was unreachable.
// It was never recorded against the user's quota.
const SourceLocal = "local"

// HistoryEntry is one palette kept in the local history database.
type HistoryEntry struct {
	ID        string
	Colors    []string
	Harmony   string
	Source    string
	CreatedAt time.Time
}
