package models

import "time"

// MCacheEntry is one stored snapshot with its bookkeeping timestamps.
type MCacheEntry struct {
	Symbol    string
	Snapshot  MSymbolSnapshot
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e MCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
