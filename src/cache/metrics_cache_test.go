package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"microstructure-cache/src/interfaces"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"
	"microstructure-cache/src/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a real store and counts durable reads.
type countingStore struct {
	interfaces.IDurableStore
	latestReads int32
}

func (s *countingStore) LoadLatest(ctx context.Context, symbol string, notBefore time.Time) (models.MCacheEntry, bool, error) {
	atomic.AddInt32(&s.latestReads, 1)
	return s.IDurableStore.LoadLatest(ctx, symbol, notBefore)
}

type failingStore struct{}

func (failingStore) Initialize(ctx context.Context) error { return nil }
func (failingStore) SaveSnapshot(ctx context.Context, entry models.MCacheEntry) error {
	return errors.New("disk full")
}
func (failingStore) LoadLatest(ctx context.Context, symbol string, notBefore time.Time) (models.MCacheEntry, bool, error) {
	return models.MCacheEntry{}, false, errors.New("disk gone")
}
func (failingStore) LoadHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.MCacheEntry, error) {
	return nil, errors.New("disk gone")
}
func (failingStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("disk gone")
}
func (failingStore) Close() error { return nil }

type recordingMirror struct {
	mu      sync.Mutex
	symbols []string
}

func (m *recordingMirror) Publish(ctx context.Context, symbol string, snapshot models.MSymbolSnapshot, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols = append(m.symbols, symbol)
	return nil
}

func (m *recordingMirror) Close() error { return nil }

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() *models.MConfig {
	return &models.MConfig{Cache: models.MCacheConfig{MemoryTTLSeconds: 60, RetentionHours: 24}}
}

func newSQLiteCache(t *testing.T) (*MetricsCache, *countingStore, *clock) {
	t.Helper()
	cfg := testConfig()
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "cache.db")

	sqlite := storage.NewSQLiteStore(cfg, logger.NewNopLogger())
	require.NoError(t, sqlite.Initialize(context.Background()))
	t.Cleanup(func() { _ = sqlite.Close() })

	store := &countingStore{IDurableStore: sqlite}
	clk := &clock{t: time.Now().UTC().Truncate(time.Millisecond)}
	c := NewMetricsCache(cfg, store, nil, logger.NewNopLogger())
	c.now = clk.Now
	return c, store, clk
}

func snapshot(symbol string, delta float64, ticks int) models.MSymbolSnapshot {
	return models.MSymbolSnapshot{
		Windows: map[string]models.MMetricsBundle{
			"5m": {DeltaVolume: delta, TickCount: ticks, CVDSlope: models.SlopeFlat, DominantSide: models.SideBuy},
		},
		PreviousPeriod: models.NeutralBundle(0),
		Metadata:       models.MSnapshotMetadata{Symbol: symbol, DataAvailable: true, BaselineLoading: true},
	}
}

func TestSetGet_MemoryHit(t *testing.T) {
	c, store, _ := newSQLiteCache(t)
	ctx := context.Background()

	c.Set(ctx, "EURUSD", snapshot("EURUSD", 12.5, 300))

	got, ok := c.Get(ctx, "EURUSD")
	require.True(t, ok)
	assert.Equal(t, 12.5, got.Windows["5m"].DeltaVolume)
	assert.Equal(t, 300, got.Windows["5m"].TickCount)
	assert.Equal(t, int32(0), atomic.LoadInt32(&store.latestReads))
}

func TestGet_ExpiredFallsBackAndRepopulates(t *testing.T) {
	c, store, clk := newSQLiteCache(t)
	ctx := context.Background()

	c.Set(ctx, "EURUSD", snapshot("EURUSD", 12.5, 300))
	clk.Advance(2 * time.Minute)

	got, ok := c.Get(ctx, "EURUSD")
	require.True(t, ok)
	assert.Equal(t, 12.5, got.Windows["5m"].DeltaVolume)
	assert.Equal(t, 300, got.Windows["5m"].TickCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.latestReads))

	again, ok := c.Get(ctx, "EURUSD")
	require.True(t, ok)
	assert.Equal(t, 300, again.Windows["5m"].TickCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.latestReads), "second read must be a memory hit")
}

func TestGet_BeyondRetentionIsNotFound(t *testing.T) {
	c, _, clk := newSQLiteCache(t)
	ctx := context.Background()

	c.Set(ctx, "EURUSD", snapshot("EURUSD", 1, 1))
	clk.Advance(25 * time.Hour)

	_, ok := c.Get(ctx, "EURUSD")
	assert.False(t, ok)

	_, ok = c.Get(ctx, "NEVER")
	assert.False(t, ok)
}

func TestCleanupExpired_Idempotent(t *testing.T) {
	c, _, clk := newSQLiteCache(t)
	ctx := context.Background()

	c.Set(ctx, "EURUSD", snapshot("EURUSD", 1, 1))
	c.Set(ctx, "GBPUSD", snapshot("GBPUSD", 1, 1))
	clk.Advance(25 * time.Hour)
	c.Set(ctx, "USDJPY", snapshot("USDJPY", 1, 1))

	// two latest rows and two history rows are past retention
	assert.Equal(t, int64(4), c.CleanupExpired(ctx))
	assert.Equal(t, int64(0), c.CleanupExpired(ctx))
	assert.Equal(t, []string{"USDJPY"}, c.Symbols())
}

func TestGetHistorical(t *testing.T) {
	c, _, clk := newSQLiteCache(t)
	ctx := context.Background()
	start := clk.Now()

	for i := 1; i <= 3; i++ {
		c.Set(ctx, "EURUSD", snapshot("EURUSD", float64(i), i))
		clk.Advance(time.Minute)
	}

	history := c.GetHistorical(ctx, "EURUSD", start, clk.Now())
	require.Len(t, history, 3)
	for i, s := range history {
		assert.Equal(t, float64(i+1), s.Windows["5m"].DeltaVolume)
	}

	assert.Empty(t, c.GetHistorical(ctx, "EURUSD", clk.Now(), start))
}

func TestUpdateBaseline(t *testing.T) {
	c, _, _ := newSQLiteCache(t)
	ctx := context.Background()

	assert.False(t, c.UpdateBaseline(ctx, "EURUSD", &models.MMetricsBundle{RealizedVolatility: 0.01}))

	c.Set(ctx, "EURUSD", snapshot("EURUSD", 4, 40))
	before, _ := c.Get(ctx, "EURUSD")
	assert.Nil(t, before.Baseline)
	assert.True(t, before.Metadata.BaselineLoading)

	require.True(t, c.UpdateBaseline(ctx, "EURUSD", &models.MMetricsBundle{RealizedVolatility: 0.01, TickCount: 9000}))

	after, ok := c.Get(ctx, "EURUSD")
	require.True(t, ok)
	require.NotNil(t, after.Baseline)
	assert.Equal(t, 9000, after.Baseline.TickCount)
	assert.False(t, after.Metadata.BaselineLoading)
	require.NotNil(t, after.Metadata.BaselineUpdated)
	assert.Equal(t, 40, after.Windows["5m"].TickCount)

	// the snapshot read earlier is untouched
	assert.Nil(t, before.Baseline)

	require.True(t, c.UpdateBaseline(ctx, "EURUSD", nil))
	failed, _ := c.Get(ctx, "EURUSD")
	assert.Nil(t, failed.Baseline)
	assert.False(t, failed.Metadata.BaselineLoading)
	assert.Nil(t, failed.Metadata.BaselineUpdated)
}

func TestUpdateBaseline_FromDurable(t *testing.T) {
	c, _, clk := newSQLiteCache(t)
	ctx := context.Background()

	c.Set(ctx, "EURUSD", snapshot("EURUSD", 4, 40))
	c.CleanupExpired(ctx)
	clk.Advance(2 * time.Minute)
	c.CleanupExpired(ctx)
	assert.Empty(t, c.Symbols())

	require.True(t, c.UpdateBaseline(ctx, "EURUSD", &models.MMetricsBundle{TickCount: 1}))
	got, ok := c.Get(ctx, "EURUSD")
	require.True(t, ok)
	assert.Equal(t, 40, got.Windows["5m"].TickCount)
	assert.Equal(t, 1, got.Baseline.TickCount)
}

func TestDurableFailuresAreSwallowed(t *testing.T) {
	cfg := testConfig()
	c := NewMetricsCache(cfg, failingStore{}, nil, logger.NewNopLogger())
	clk := &clock{t: time.Now().UTC()}
	c.now = clk.Now
	ctx := context.Background()

	c.Set(ctx, "EURUSD", snapshot("EURUSD", 3, 30))
	got, ok := c.Get(ctx, "EURUSD")
	require.True(t, ok)
	assert.Equal(t, 30, got.Windows["5m"].TickCount)

	clk.Advance(2 * time.Minute)
	_, ok = c.Get(ctx, "EURUSD")
	assert.False(t, ok)

	assert.Empty(t, c.GetHistorical(ctx, "EURUSD", clk.Now().Add(-time.Hour), clk.Now()))
	assert.Equal(t, int64(0), c.CleanupExpired(ctx))
}

func TestMirrorReceivesWrites(t *testing.T) {
	mirror := &recordingMirror{}
	c := NewMetricsCache(testConfig(), nil, mirror, logger.NewNopLogger())
	ctx := context.Background()

	c.Set(ctx, "EURUSD", snapshot("EURUSD", 1, 1))
	c.UpdateBaseline(ctx, "EURUSD", &models.MMetricsBundle{})
	assert.Equal(t, []string{"EURUSD", "EURUSD"}, mirror.symbols)
}

func TestConcurrentAccess(t *testing.T) {
	c := NewMetricsCache(testConfig(), nil, nil, logger.NewNopLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				switch i % 3 {
				case 0:
					c.Set(ctx, "EURUSD", snapshot("EURUSD", float64(i), i))
				case 1:
					c.UpdateBaseline(ctx, "EURUSD", &models.MMetricsBundle{TickCount: w})
				default:
					c.Get(ctx, "EURUSD")
				}
			}
		}(w)
	}
	wg.Wait()

	_, ok := c.Get(ctx, "EURUSD")
	assert.True(t, ok)
}

func TestStartCleanupAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.CleanupIntervalSeconds = 1
	c := NewMetricsCache(cfg, nil, nil, logger.NewNopLogger())

	c.StartCleanup(context.Background())
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the cleanup loop")
	}
}
