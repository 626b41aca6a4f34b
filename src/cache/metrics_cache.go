package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"microstructure-cache/src/interfaces"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"
)

const (
	defaultMemoryTTL       = 60 * time.Second
	defaultRetention       = 24 * time.Hour
	defaultCleanupInterval = 10 * time.Minute
)

// MetricsCache keeps the latest snapshot per symbol in memory with a short
// TTL, backed by a durable store that survives restarts and serves history.
type MetricsCache struct {
	Config *models.MConfig
	Store  interfaces.IDurableStore
	Mirror interfaces.ISnapshotMirror
	Logger *logger.Logger

	mu      sync.RWMutex
	entries map[string]models.MCacheEntry

	ttl       time.Duration
	retention time.Duration
	now       func() time.Time

	cleanupCancel context.CancelFunc
	wg            sync.WaitGroup
}

// -----------------------------------------------------------------------------

// NewMetricsCache builds the cache. mirror may be nil.
func NewMetricsCache(cfg *models.MConfig, store interfaces.IDurableStore, mirror interfaces.ISnapshotMirror, log *logger.Logger) *MetricsCache {
	ttl := time.Duration(cfg.Cache.MemoryTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	retention := time.Duration(cfg.Cache.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = defaultRetention
	}

	return &MetricsCache{
		Config:    cfg,
		Store:     store,
		Mirror:    mirror,
		Logger:    log,
		entries:   make(map[string]models.MCacheEntry),
		ttl:       ttl,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------

// Set stores the snapshot in memory, then persists it. Persistence and
// mirror errors are logged, never returned.
func (c *MetricsCache) Set(ctx context.Context, symbol string, snapshot models.MSymbolSnapshot) {
	now := c.now()
	entry := models.MCacheEntry{
		Symbol:    symbol,
		Snapshot:  snapshot,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	c.entries[symbol] = entry
	c.mu.Unlock()

	c.persist(ctx, entry)
}

// -----------------------------------------------------------------------------

func (c *MetricsCache) persist(ctx context.Context, entry models.MCacheEntry) {
	if c.Store != nil {
		if err := c.Store.SaveSnapshot(ctx, entry); err != nil {
			c.Logger.Error("Durable write failed for %s: %v", entry.Symbol, err)
		}
	}

	if c.Mirror != nil {
		if err := c.Mirror.Publish(ctx, entry.Symbol, entry.Snapshot, c.ttl); err != nil {
			c.Logger.Warning("Mirror publish failed for %s: %v", entry.Symbol, err)
		}
	}
}

// -----------------------------------------------------------------------------

// Get returns the live memory entry, or else the durable latest row within
// retention, which is then put back in memory with a fresh TTL.
func (c *MetricsCache) Get(ctx context.Context, symbol string) (models.MSymbolSnapshot, bool) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()

	if ok && !entry.Expired(now) {
		return entry.Snapshot, true
	}

	stored, found := c.loadDurable(ctx, symbol, now)
	if !found {
		return models.MSymbolSnapshot{}, false
	}

	c.mu.Lock()
	// a concurrent Set may have landed while we were reading
	if current, ok := c.entries[symbol]; ok && !current.Expired(now) && current.CreatedAt.After(stored.CreatedAt) {
		c.mu.Unlock()
		return current.Snapshot, true
	}
	stored.ExpiresAt = now.Add(c.ttl)
	c.entries[symbol] = stored
	c.mu.Unlock()

	return stored.Snapshot, true
}

// -----------------------------------------------------------------------------

func (c *MetricsCache) loadDurable(ctx context.Context, symbol string, now time.Time) (models.MCacheEntry, bool) {
	if c.Store == nil {
		return models.MCacheEntry{}, false
	}

	entry, found, err := c.Store.LoadLatest(ctx, symbol, now.Add(-c.retention))
	if err != nil {
		c.Logger.Error("Durable read failed for %s: %v", symbol, err)
		return models.MCacheEntry{}, false
	}
	return entry, found
}

// -----------------------------------------------------------------------------

// GetHistorical returns stored snapshots for symbol in [from, to], oldest
// first. Read failures yield an empty result.
func (c *MetricsCache) GetHistorical(ctx context.Context, symbol string, from, to time.Time) []models.MSymbolSnapshot {
	out := make([]models.MSymbolSnapshot, 0)
	if c.Store == nil || to.Before(from) {
		return out
	}

	entries, err := c.Store.LoadHistory(ctx, symbol, from, to)
	if err != nil {
		c.Logger.Error("History read failed for %s: %v", symbol, err)
		return out
	}

	for _, e := range entries {
		out = append(out, e.Snapshot)
	}
	return out
}

// -----------------------------------------------------------------------------

// UpdateBaseline swaps in a new baseline for the cached snapshot of symbol
// and clears baseline_loading. Fast-cycle fields are left as they are.
// It reports false when nothing is cached for the symbol.
func (c *MetricsCache) UpdateBaseline(ctx context.Context, symbol string, baseline *models.MMetricsBundle) bool {
	now := c.now()

	c.mu.RLock()
	_, inMemory := c.entries[symbol]
	c.mu.RUnlock()

	var fallback models.MCacheEntry
	hasFallback := false
	if !inMemory {
		fallback, hasFallback = c.loadDurable(ctx, symbol, now)
	}

	c.mu.Lock()
	current, ok := c.entries[symbol]
	if !ok {
		if !hasFallback {
			c.mu.Unlock()
			return false
		}
		current = fallback
	}

	updated := models.MCacheEntry{
		Symbol:    symbol,
		Snapshot:  current.Snapshot.WithBaseline(baseline, now),
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.entries[symbol] = updated
	c.mu.Unlock()

	c.persist(ctx, updated)
	return true
}

// -----------------------------------------------------------------------------

// CleanupExpired drops expired memory entries and durable rows older than
// the retention horizon. It returns the number of durable rows removed.
func (c *MetricsCache) CleanupExpired(ctx context.Context) int64 {
	now := c.now()

	c.mu.Lock()
	dropped := 0
	for symbol, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, symbol)
			dropped++
		}
	}
	c.mu.Unlock()

	if dropped > 0 {
		c.Logger.Debug("Dropped %d expired memory entries", dropped)
	}

	if c.Store == nil {
		return 0
	}

	removed, err := c.Store.DeleteOlderThan(ctx, now.Add(-c.retention))
	if err != nil {
		c.Logger.Error("Durable cleanup failed: %v", err)
		return 0
	}
	if removed > 0 {
		c.Logger.Info("Cleanup removed %d durable rows older than %s", removed, c.retention)
	}
	return removed
}

// -----------------------------------------------------------------------------

// StartCleanup runs CleanupExpired every cache.cleanup_interval_seconds until
// Close is called or ctx is done.
func (c *MetricsCache) StartCleanup(ctx context.Context) {
	interval := time.Duration(c.Config.Cache.CleanupIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultCleanupInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cleanupCancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				c.CleanupExpired(loopCtx)
			}
		}
	}()
}

// -----------------------------------------------------------------------------

// Close stops the cleanup loop. The store and mirror belong to the caller.
func (c *MetricsCache) Close() {
	if c.cleanupCancel != nil {
		c.cleanupCancel()
	}
	c.wg.Wait()
}

// -----------------------------------------------------------------------------

// Symbols lists symbols with a live memory entry.
func (c *MetricsCache) Symbols() []string {
	now := c.now()

	c.mu.RLock()
	out := make([]string, 0, len(c.entries))
	for symbol, e := range c.entries {
		if !e.Expired(now) {
			out = append(out, symbol)
		}
	}
	c.mu.RUnlock()

	sort.Strings(out)
	return out
}
