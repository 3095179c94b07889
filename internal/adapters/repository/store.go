// Package repository caches fetched spreadsheet ranges so dashboards can be
// served without a network round trip and survive upstream outages.
package repository

import (
	"context"
	"time"
)

// Entry is one cached payload.
type Entry struct {
	Key       string
	Payload   []byte
	FetchedAt time.Time
}

// Age returns how long ago the entry was fetched.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Store provides read/write access to cached ranges.
type Store interface {
	// Get returns the entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (Entry, error)
	// Put stores payload under key, stamped with the current time.
	Put(ctx context.Context, key string, payload []byte) error
	// Purge removes entries fetched before olderThan and returns how many went.
	Purge(ctx context.Context, olderThan time.Time) (int, error)
	// Count returns the number of cached entries.
	Count(ctx context.Context) (int, error)
	Close() error
}
