package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"microstructure-cache/src/analysis"
	"microstructure-cache/src/cache"
	"microstructure-cache/src/config"
	"microstructure-cache/src/fetcher"
	"microstructure-cache/src/helpers"
	"microstructure-cache/src/interfaces"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"
	"microstructure-cache/src/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State is the generator lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Reasons written to unavailable snapshots.
const (
	ReasonProviderUnreachable = "provider unreachable"
	ReasonNoTicks             = "no ticks in window"
	ReasonMarketClosed        = "market closed"
)

// Window names used for threshold lookup outside the rolling windows.
const (
	PreviousPeriodWindow = "previous_period"
	BaselineWindow       = "baseline"
)

// SnapshotGenerator keeps one snapshot per symbol fresh in the cache.
type SnapshotGenerator struct {
	Config     *config.Config
	Fetcher    interfaces.ITickFetcher
	Cache      *cache.MetricsCache
	Calculator *analysis.MetricsCalculator
	Thresholds *config.ThresholdResolver
	Scheduler  *utils.MarketScheduler
	Exchanger  interfaces.IDataExchanger
	Logger     *logger.Logger

	symbols []string
	windows map[string]time.Duration
	largest time.Duration

	interval        time.Duration
	baselineWindow  time.Duration
	baselineRefresh time.Duration
	baselineDelay   time.Duration
	stopGrace       time.Duration
	workers         int

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	runWg    *sync.WaitGroup
	onChange []func(State)

	inFlightMu sync.Mutex
	inFlight   map[string]bool

	baselineMu sync.RWMutex
	baselines  map[string]baselineState

	now func() time.Time
}

type baselineState struct {
	bundle  *models.MMetricsBundle
	updated *time.Time
}

// -----------------------------------------------------------------------------

// NewSnapshotGenerator wires a generator from configuration. The market-hours
// gate is only built when generator.respect_market_hours is set.
func NewSnapshotGenerator(cfg *config.Config, tf interfaces.ITickFetcher, metricsCache *cache.MetricsCache, log *logger.Logger) *SnapshotGenerator {
	gc := cfg.Generator

	g := &SnapshotGenerator{
		Config:     cfg,
		Fetcher:    tf,
		Cache:      metricsCache,
		Calculator: analysis.NewMetricsCalculator(cfg.Thresholds.Default),
		Thresholds: config.NewThresholdResolver(cfg.Thresholds),
		Logger:     log,

		symbols: cfg.SymbolList(),
		windows: cfg.WindowDurations(),
		largest: cfg.LargestWindow(),

		interval:        seconds(gc.UpdateIntervalSeconds, 60),
		baselineWindow:  time.Duration(gc.BaselineHours) * time.Hour,
		baselineRefresh: seconds(gc.BaselineRefreshSeconds, 3600),
		baselineDelay:   time.Duration(gc.BaselineStartDelaySeconds) * time.Second,
		stopGrace:       seconds(gc.StopGraceSeconds, 3),
		workers:         gc.Workers,

		state:     StateStopped,
		inFlight:  make(map[string]bool),
		baselines: make(map[string]baselineState),
		now:       func() time.Time { return time.Now().UTC() },
	}

	if g.baselineWindow <= 0 {
		g.baselineWindow = 24 * time.Hour
	}
	if g.workers <= 0 {
		g.workers = 1
	}
	if gc.RespectMarketHours {
		g.Scheduler = utils.NewMarketScheduler(g.symbols, gc.SymbolCalendars, log)
	}
	return g
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

// -----------------------------------------------------------------------------

// SetExchanger attaches a listener that receives every written snapshot.
func (g *SnapshotGenerator) SetExchanger(ex interfaces.IDataExchanger) {
	g.Exchanger = ex
}

// -----------------------------------------------------------------------------

// OnStateChange registers a hook called after every state transition.
func (g *SnapshotGenerator) OnStateChange(fn func(State)) {
	g.mu.Lock()
	g.onChange = append(g.onChange, fn)
	g.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (g *SnapshotGenerator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// -----------------------------------------------------------------------------

// setState must be called with g.mu held. It returns the hooks to notify
// once the lock is released.
func (g *SnapshotGenerator) setState(s State) []func(State) {
	g.state = s
	hooks := make([]func(State), len(g.onChange))
	copy(hooks, g.onChange)
	return hooks
}

func notify(hooks []func(State), s State) {
	for _, fn := range hooks {
		fn(s)
	}
}

// -----------------------------------------------------------------------------

// Symbols returns the configured symbol list.
func (g *SnapshotGenerator) Symbols() []string {
	out := make([]string, len(g.symbols))
	copy(out, g.symbols)
	return out
}

// -----------------------------------------------------------------------------

// Start runs one full cycle so the cache is populated, then starts the
// timer loop and the baseline loader in the background.
func (g *SnapshotGenerator) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.state != StateStopped {
		state := g.state
		g.mu.Unlock()
		return helpers.NewLifecycleError(fmt.Sprintf("snapshot generator is %s", state), nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	wg := &sync.WaitGroup{}
	g.runWg = wg
	hooks := g.setState(StateRunning)
	g.mu.Unlock()
	notify(hooks, StateRunning)

	g.Logger.Info("Starting snapshot generator for %d symbols (interval %s, %d windows)",
		len(g.symbols), g.interval, len(g.windows))

	g.RunCycle(runCtx)

	wg.Add(2)
	go g.cycleLoop(runCtx, wg)
	go g.baselineLoop(runCtx, wg)

	return nil
}

// -----------------------------------------------------------------------------

// Stop cancels both loops and waits for in-flight work up to the grace
// period. On timeout it returns a LifecycleError; the generator is still
// marked stopped.
func (g *SnapshotGenerator) Stop() error {
	g.mu.Lock()
	if g.state != StateRunning {
		g.mu.Unlock()
		return nil
	}
	hooks := g.setState(StateStopping)
	cancel, wg := g.cancel, g.runWg
	g.cancel, g.runWg = nil, nil
	g.mu.Unlock()
	notify(hooks, StateStopping)

	g.Logger.Info("Stopping snapshot generator...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		g.Logger.Info("Snapshot generator stopped.")
	case <-time.After(g.stopGrace):
		g.Logger.Warning("Snapshot generator did not stop within %s, shutting down anyway", g.stopGrace)
		err = helpers.NewLifecycleError(fmt.Sprintf("snapshot generator did not stop within %s", g.stopGrace), nil)
	}

	g.mu.Lock()
	hooks = g.setState(StateStopped)
	g.mu.Unlock()
	notify(hooks, StateStopped)

	return err
}

// -----------------------------------------------------------------------------

func (g *SnapshotGenerator) cycleLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// the cycle runs off the timer goroutine; busy symbols are skipped
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.RunCycle(ctx)
			}()
		}
	}
}

// -----------------------------------------------------------------------------

// RunCycle refreshes every configured symbol once and returns the number of
// snapshots written. Symbols still in flight from an earlier cycle are skipped.
func (g *SnapshotGenerator) RunCycle(ctx context.Context) int {
	cycleID := uuid.NewString()
	started := time.Now()

	var (
		mu      sync.Mutex
		written int
		skipped int
	)

	if !g.MarketsOpen() {
		g.Logger.Debug("Cycle %s: every tracked market is closed", cycleID)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	for _, symbol := range g.symbols {
		if !g.acquire(symbol) {
			mu.Lock()
			skipped++
			mu.Unlock()
			continue
		}

		eg.Go(func() error {
			defer g.release(symbol)

			snapshot, ok := g.buildSnapshot(egCtx, symbol, cycleID)
			if !ok || egCtx.Err() != nil {
				return nil
			}
			g.publish(egCtx, symbol, snapshot)

			mu.Lock()
			written++
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	g.Logger.Debug("Cycle %s: %d written, %d skipped in %s", cycleID, written, skipped, time.Since(started))
	return written
}

// -----------------------------------------------------------------------------

// MarketsOpen reports whether at least one tracked market trades now. It is
// always true when market hours are not respected.
func (g *SnapshotGenerator) MarketsOpen() bool {
	if g.Scheduler == nil {
		return true
	}
	return g.Scheduler.AnyMarketOpen(g.now())
}

// -----------------------------------------------------------------------------

func (g *SnapshotGenerator) acquire(symbol string) bool {
	g.inFlightMu.Lock()
	defer g.inFlightMu.Unlock()

	if g.inFlight[symbol] {
		return false
	}
	g.inFlight[symbol] = true
	return true
}

func (g *SnapshotGenerator) release(symbol string) {
	g.inFlightMu.Lock()
	delete(g.inFlight, symbol)
	g.inFlightMu.Unlock()
}

// -----------------------------------------------------------------------------

func (g *SnapshotGenerator) publish(ctx context.Context, symbol string, snapshot models.MSymbolSnapshot) {
	g.Cache.Set(ctx, symbol, snapshot)
	if g.Exchanger != nil {
		g.Exchanger.Broadcast(symbol, snapshot)
	}
}

// -----------------------------------------------------------------------------

// buildSnapshot assembles the full snapshot for one symbol. ok is false when
// the existing snapshot should be kept as is. A panic anywhere below is
// turned into an unavailable snapshot for this symbol only.
func (g *SnapshotGenerator) buildSnapshot(ctx context.Context, symbol, cycleID string) (snapshot models.MSymbolSnapshot, ok bool) {
	now := g.now()
	baseline, baselineUpdated, baselineLoaded := g.baselineFor(symbol)

	unavailable := func(reason string) models.MSymbolSnapshot {
		s := models.UnavailableSnapshot(symbol, reason, baseline, !baselineLoaded, now)
		s.Metadata.BaselineUpdated = baselineUpdated
		s.Metadata.CycleID = cycleID
		return s
	}

	defer func() {
		if r := recover(); r != nil {
			g.Logger.With("symbol", symbol, "cycle_id", cycleID).Error("Panic while building snapshot: %v", r)
			snapshot, ok = unavailable(fmt.Sprintf("internal error: %v", r)), true
		}
	}()

	if g.Scheduler != nil && !g.Scheduler.IsOpen(symbol, now) {
		if _, cached := g.Cache.Get(ctx, symbol); cached {
			return models.MSymbolSnapshot{}, false
		}
		return unavailable(ReasonMarketClosed), true
	}

	// windows end at now inclusive
	ticks, fetched := g.Fetcher.Fetch(ctx, symbol, now.Add(-g.largest), now.Add(time.Millisecond))
	if !fetched {
		g.Logger.Warning("Fetch failed for %s: %s", symbol, ReasonProviderUnreachable)
		return unavailable(ReasonProviderUnreachable), true
	}
	if len(ticks) == 0 {
		return unavailable(ReasonNoTicks), true
	}

	session := g.Config.SessionAt(now)
	endMs := now.UnixMilli() + 1

	windows := make(map[string]models.MMetricsBundle, len(g.windows))
	for name, dur := range g.windows {
		slice := analysis.SliceTicks(ticks, now.Add(-dur).UnixMilli(), endMs)
		bundle := g.Calculator.CalculateWith(slice, g.Thresholds.Resolve(symbol, name, session))
		windows[name] = withRatio(bundle, baseline)
	}

	previous := models.NeutralBundle(0)
	prevStart, prevEnd := fetcher.PreviousHourRange(now)
	if prevTicks, ok := g.Fetcher.Fetch(ctx, symbol, prevStart, prevEnd); ok {
		th := g.Thresholds.Resolve(symbol, PreviousPeriodWindow, g.Config.SessionAt(prevStart))
		previous = withRatio(g.Calculator.CalculateWith(prevTicks, th), baseline)
	} else {
		g.Logger.Debug("Previous hour unavailable for %s", symbol)
	}

	return models.MSymbolSnapshot{
		Windows:        windows,
		PreviousPeriod: previous,
		Baseline:       baseline,
		Metadata: models.MSnapshotMetadata{
			Symbol:          symbol,
			LastUpdated:     now,
			DataAvailable:   true,
			BaselineLoading: !baselineLoaded,
			BaselineUpdated: baselineUpdated,
			CycleID:         cycleID,
		},
	}, true
}

// -----------------------------------------------------------------------------

func withRatio(bundle models.MMetricsBundle, baseline *models.MMetricsBundle) models.MMetricsBundle {
	if baseline != nil {
		bundle.VolatilityRatio = analysis.VolatilityRatio(bundle.RealizedVolatility, baseline.RealizedVolatility)
	}
	return bundle
}

// -----------------------------------------------------------------------------

// GetLatestMetrics returns the cached snapshot for symbol. found is false
// when nothing has been produced yet.
func (g *SnapshotGenerator) GetLatestMetrics(ctx context.Context, symbol string) (models.MSymbolSnapshot, bool) {
	return g.Cache.Get(ctx, symbol)
}

// -----------------------------------------------------------------------------

// GetHistorical returns stored snapshots for symbol between from and to.
func (g *SnapshotGenerator) GetHistorical(ctx context.Context, symbol string, from, to time.Time) []models.MSymbolSnapshot {
	return g.Cache.GetHistorical(ctx, symbol, from, to)
}
