package interfaces

import (
	"context"
	"time"

	"microstructure-cache/src/models"
)

// -----------------------------------------------------------------------------
// IMetricsReader is the read-only view consumers get of the cached snapshots.
// -----------------------------------------------------------------------------

type IMetricsReader interface {

	// GetLatestMetrics returns the latest snapshot; found is false when none exists.
	GetLatestMetrics(ctx context.Context, symbol string) (snapshot models.MSymbolSnapshot, found bool)

	// -----------------------------------------------------------------------------

	// GetHistorical returns stored snapshots in [from, to], oldest first.
	GetHistorical(ctx context.Context, symbol string, from, to time.Time) []models.MSymbolSnapshot

	// -----------------------------------------------------------------------------

	// Symbols lists the symbols the reader knows about.
	Symbols() []string
}
