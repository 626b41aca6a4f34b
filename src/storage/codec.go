package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"microstructure-cache/src/models"
)

// snapshotRow is one row of snapshot_latest or snapshot_history. Timestamps
// are unix milliseconds.
type snapshotRow struct {
	Snapshot  string `db:"snapshot"`
	CreatedAt int64  `db:"created_at"`
	ExpiresAt int64  `db:"expires_at"`
}

// -----------------------------------------------------------------------------

func encodeEntry(entry models.MCacheEntry) (string, int64, int64, error) {
	data, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal snapshot for %s: %w", entry.Symbol, err)
	}
	return string(data), entry.CreatedAt.UnixMilli(), entry.ExpiresAt.UnixMilli(), nil
}

// -----------------------------------------------------------------------------

func decodeEntry(symbol, data string, createdAt, expiresAt int64) (models.MCacheEntry, error) {
	var snap models.MSymbolSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return models.MCacheEntry{}, fmt.Errorf("unmarshal snapshot for %s: %w", symbol, err)
	}
	if snap.Windows == nil {
		snap.Windows = map[string]models.MMetricsBundle{}
	}
	return models.MCacheEntry{
		Symbol:    symbol,
		Snapshot:  snap,
		CreatedAt: time.UnixMilli(createdAt).UTC(),
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
	}, nil
}
