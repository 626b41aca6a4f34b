package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	cfg := &models.MConfig{Storage: models.MStorageConfig{
		DBType: "sqlite",
		DBPath: filepath.Join(t.TempDir(), "data", "cache.db"),
	}}
	store := NewSQLiteStore(cfg, logger.NewNopLogger())
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func entryAt(symbol string, created time.Time, delta float64) models.MCacheEntry {
	snap := models.MSymbolSnapshot{
		Windows: map[string]models.MMetricsBundle{
			"5m": {DeltaVolume: delta, TickCount: 42, CVDSlope: models.SlopeUp, DominantSide: models.SideBuy},
		},
		PreviousPeriod: models.NeutralBundle(0),
		Metadata:       models.MSnapshotMetadata{Symbol: symbol, LastUpdated: created, DataAvailable: true, BaselineLoading: true},
	}
	return models.MCacheEntry{Symbol: symbol, Snapshot: snap, CreatedAt: created, ExpiresAt: created.Add(time.Minute)}
}

func TestSQLiteStore_SaveAndLoadLatest(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.SaveSnapshot(ctx, entryAt("EURUSD", now.Add(-2*time.Second), 1)))
	require.NoError(t, store.SaveSnapshot(ctx, entryAt("EURUSD", now, 7)))

	entry, found, err := store.LoadLatest(ctx, "EURUSD", now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 7.0, entry.Snapshot.Windows["5m"].DeltaVolume)
	assert.Equal(t, 42, entry.Snapshot.Windows["5m"].TickCount)
	assert.True(t, entry.CreatedAt.Equal(now))
	assert.Nil(t, entry.Snapshot.Baseline)
	assert.True(t, entry.Snapshot.Metadata.BaselineLoading)

	_, found, err = store.LoadLatest(ctx, "EURUSD", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.LoadLatest(ctx, "GBPUSD", time.Time{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_LateWriteKeepsNewestLatest(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.SaveSnapshot(ctx, entryAt("EURUSD", now, 7)))
	require.NoError(t, store.SaveSnapshot(ctx, entryAt("EURUSD", now.Add(-time.Second), 1)))

	entry, found, err := store.LoadLatest(ctx, "EURUSD", time.Time{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 7.0, entry.Snapshot.Windows["5m"].DeltaVolume)
	assert.True(t, entry.CreatedAt.Equal(now))

	// the older snapshot still lands in history
	history, err := store.LoadHistory(ctx, "EURUSD", now.Add(-time.Minute), now)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSQLiteStore_History(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveSnapshot(ctx, entryAt("EURUSD", base.Add(time.Duration(i)*time.Minute), float64(i))))
	}
	require.NoError(t, store.SaveSnapshot(ctx, entryAt("GBPUSD", base, 99)))

	history, err := store.LoadHistory(ctx, "EURUSD", base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, e := range history {
		assert.Equal(t, float64(i+1), e.Snapshot.Windows["5m"].DeltaVolume)
	}

	none, err := store.LoadHistory(ctx, "USDJPY", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLiteStore_DeleteOlderThanIsIdempotent(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveSnapshot(ctx, entryAt("OLD", now.Add(-48*time.Hour), 1)))
	require.NoError(t, store.SaveSnapshot(ctx, entryAt("OLD", now.Add(-47*time.Hour), 2)))
	require.NoError(t, store.SaveSnapshot(ctx, entryAt("NEW", now, 3)))

	cutoff := now.Add(-24 * time.Hour)
	removed, err := store.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	// one latest row and two history rows for OLD
	assert.Equal(t, int64(3), removed)

	removed, err = store.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	_, found, err := store.LoadLatest(ctx, "NEW", cutoff)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSQLiteStore_ConcurrentWriters(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	base := time.Now().UTC()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				created := base.Add(time.Duration(w*10+i) * time.Millisecond)
				errs <- store.SaveSnapshot(ctx, entryAt("EURUSD", created, float64(i)))
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	history, err := store.LoadHistory(ctx, "EURUSD", base, base.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, history, 40)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	cfg := &models.MConfig{Storage: models.MStorageConfig{DBPath: path}}
	ctx := context.Background()
	now := time.Now().UTC()

	first := NewSQLiteStore(cfg, logger.NewNopLogger())
	require.NoError(t, first.Initialize(ctx))
	require.NoError(t, first.SaveSnapshot(ctx, entryAt("EURUSD", now, 5)))
	require.NoError(t, first.Close())

	second := NewSQLiteStore(cfg, logger.NewNopLogger())
	require.NoError(t, second.Initialize(ctx))
	defer second.Close()

	entry, found, err := second.LoadLatest(ctx, "EURUSD", now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 5.0, entry.Snapshot.Windows["5m"].DeltaVolume)
}

func TestSQLiteStore_SkipsCorruptHistoryRows(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.SaveSnapshot(ctx, entryAt("EURUSD", now, 3)))
	_, err := store.DB.ExecContext(ctx,
		`INSERT INTO snapshot_history (symbol, created_at, snapshot, expires_at) VALUES (?, ?, ?, ?)`,
		"EURUSD", now.Add(-time.Second).UnixMilli(), "{not json", now.UnixMilli())
	require.NoError(t, err)

	history, err := store.LoadHistory(ctx, "EURUSD", now.Add(-time.Minute), now)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 3.0, history[0].Snapshot.Windows["5m"].DeltaVolume)
}
