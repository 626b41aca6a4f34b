package interfaces

import (
	"context"

	"microstructure-cache/src/models"
)

// -----------------------------------------------------------------------------
// ITickProvider is the market-data provider boundary.
// -----------------------------------------------------------------------------

type ITickProvider interface {

	// Name returns the unique identifier of the provider
	Name() string

	// -----------------------------------------------------------------------------

	// EnsureConnected establishes (or verifies) the provider connection.
	// A non-nil error means no tick request can succeed right now.
	EnsureConnected(ctx context.Context) error

	// -----------------------------------------------------------------------------

	// FetchTicksInRange returns raw ticks for symbol within [startUnix, endUnix].
	// The provider enforces its own per-call record cap.
	FetchTicksInRange(ctx context.Context, symbol string, startUnix, endUnix int64) ([]models.MRawTick, error)
}
