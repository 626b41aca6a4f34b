package interfaces

import (
	"context"
	"time"

	"microstructure-cache/src/models"
)

// -----------------------------------------------------------------------------
// ISnapshotMirror receives every snapshot written to the cache so that
// consumers in other processes can read it.
// -----------------------------------------------------------------------------

type ISnapshotMirror interface {
	Publish(ctx context.Context, symbol string, snapshot models.MSymbolSnapshot, ttl time.Duration) error
	Close() error
}
