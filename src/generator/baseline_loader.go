package generator

import (
	"context"
	"sync"
	"time"

	"microstructure-cache/src/models"

	"golang.org/x/sync/errgroup"
)

// -----------------------------------------------------------------------------

func (g *SnapshotGenerator) baselineLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	// keep the first cycle's provider calls uncontended
	if g.baselineDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(g.baselineDelay):
		}
	}

	g.LoadBaselines(ctx)

	ticker := time.NewTicker(g.baselineRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.LoadBaselines(ctx)
		}
	}
}

// -----------------------------------------------------------------------------

// LoadBaselines computes the baseline bundle of every symbol and swaps it
// into the cached snapshot. A failed fetch leaves the baseline nil.
func (g *SnapshotGenerator) LoadBaselines(ctx context.Context) {
	started := time.Now()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	for _, symbol := range g.symbols {
		eg.Go(func() error {
			g.loadBaseline(egCtx, symbol)
			return nil
		})
	}
	_ = eg.Wait()

	g.Logger.Info("Baselines refreshed for %d symbols in %s", len(g.symbols), time.Since(started))
}

// -----------------------------------------------------------------------------

func (g *SnapshotGenerator) loadBaseline(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			g.Logger.Error("Panic while loading baseline for %s: %v", symbol, r)
			g.storeBaseline(ctx, symbol, nil)
		}
	}()

	now := g.now()
	ticks, ok := g.Fetcher.Fetch(ctx, symbol, now.Add(-g.baselineWindow), now)
	if ctx.Err() != nil {
		return
	}

	var bundle *models.MMetricsBundle
	switch {
	case !ok:
		g.Logger.Warning("Baseline fetch failed for %s, baseline unavailable", symbol)
	case len(ticks) < 2:
		g.Logger.Warning("Baseline for %s has %d ticks, baseline unavailable", symbol, len(ticks))
	default:
		th := g.Thresholds.Resolve(symbol, BaselineWindow, g.Config.SessionAt(now))
		b := g.Calculator.CalculateWith(ticks, th)
		bundle = &b
	}

	g.storeBaseline(ctx, symbol, bundle)
}

// -----------------------------------------------------------------------------

func (g *SnapshotGenerator) storeBaseline(ctx context.Context, symbol string, bundle *models.MMetricsBundle) {
	now := g.now()

	state := baselineState{bundle: bundle}
	if bundle != nil {
		state.updated = &now
	}

	g.baselineMu.Lock()
	g.baselines[symbol] = state
	g.baselineMu.Unlock()

	if !g.Cache.UpdateBaseline(ctx, symbol, bundle) {
		g.Logger.Debug("No cached snapshot for %s yet, baseline kept for the next cycle", symbol)
		return
	}

	if g.Exchanger != nil {
		if snapshot, found := g.Cache.Get(ctx, symbol); found {
			g.Exchanger.Broadcast(symbol, snapshot)
		}
	}
}

// -----------------------------------------------------------------------------

// baselineFor returns the current baseline of symbol and whether the loader
// has finished with it at least once.
func (g *SnapshotGenerator) baselineFor(symbol string) (*models.MMetricsBundle, *time.Time, bool) {
	g.baselineMu.RLock()
	defer g.baselineMu.RUnlock()

	state, ok := g.baselines[symbol]
	return state.bundle, state.updated, ok
}
