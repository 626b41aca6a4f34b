package interfaces

import (
	"context"
	"time"

	"microstructure-cache/src/models"
)

// -----------------------------------------------------------------------------
// ITickFetcher returns validated ticks for a window. ok is false only when
// the provider could not be reached at all.
// -----------------------------------------------------------------------------

type ITickFetcher interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) (ticks []models.MTick, ok bool)
}
