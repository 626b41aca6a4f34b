package interfaces

import (
	"context"
	"time"

	"microstructure-cache/src/models"
)

// -----------------------------------------------------------------------------
// IDurableStore defines the contract for the on-disk snapshot layer.
// -----------------------------------------------------------------------------

type IDurableStore interface {

	// Initialize sets up the database schema and tables.
	Initialize(ctx context.Context) error

	// -----------------------------------------------------------------------------

	// SaveSnapshot upserts the latest row for the symbol and appends a history row.
	SaveSnapshot(ctx context.Context, entry models.MCacheEntry) error

	// -----------------------------------------------------------------------------

	// LoadLatest returns the latest row for symbol created at or after notBefore.
	// found is false when no such row exists.
	LoadLatest(ctx context.Context, symbol string, notBefore time.Time) (entry models.MCacheEntry, found bool, err error)

	// -----------------------------------------------------------------------------

	// LoadHistory returns history rows for symbol with created_at in [from, to], oldest first.
	LoadHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.MCacheEntry, error)

	// -----------------------------------------------------------------------------

	// DeleteOlderThan removes latest and history rows created before cutoff
	// and returns the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
