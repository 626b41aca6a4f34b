package synthetic

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"
)

const defaultTicksPerHour = 3600

// SyntheticSource generates ticks on demand. The same (seed, symbol, timestamp)
// always yields the same tick, so overlapping or chunked requests agree.
type SyntheticSource struct {
	Config *models.MConfig
	Logger *logger.Logger
	seed   int64
}

// -----------------------------------------------------------------------------

func NewSyntheticSource(cfg *models.MConfig) *SyntheticSource {
	return &SyntheticSource{
		Config: cfg,
		Logger: logger.NewLogger(cfg, "SyntheticSource"),
		seed:   cfg.Provider.SyntheticSeed,
	}
}

// -----------------------------------------------------------------------------

func (g *SyntheticSource) Name() string {
	return "synthetic"
}

// -----------------------------------------------------------------------------

func (g *SyntheticSource) EnsureConnected(ctx context.Context) error {
	return ctx.Err()
}

// -----------------------------------------------------------------------------

func (g *SyntheticSource) stepMs(symbol string) int64 {
	tph := g.Config.Provider.TicksPerHour
	if v, ok := g.Config.Provider.SymbolTicksPerHour[symbol]; ok && v > 0 {
		tph = v
	}
	if tph <= 0 {
		tph = defaultTicksPerHour
	}
	step := int64(3_600_000 / tph)
	if step < 1 {
		step = 1
	}
	return step
}

// -----------------------------------------------------------------------------

func symbolHash(symbol string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return int64(h.Sum64() >> 1)
}

// -----------------------------------------------------------------------------

// basePrice keeps majors near 1 and everything else in a plausible range.
func basePrice(symbol string) float64 {
	switch symbol {
	case "BTCUSD", "BTCUSDT":
		return 50000
	case "XAUUSD":
		return 2000
	case "USDJPY":
		return 150
	}
	return 1 + float64(symbolHash(symbol)%1000)/1000
}

// -----------------------------------------------------------------------------

// FetchTicksInRange returns the ticks from startUnix through the whole of the
// endUnix second, truncated to max_ticks_per_call like a real broker feed.
func (g *SyntheticSource) FetchTicksInRange(ctx context.Context, symbol string, startUnix, endUnix int64) ([]models.MRawTick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	step := g.stepMs(symbol)
	startMs := startUnix * 1000
	endMs := (endUnix + 1) * 1000
	first := (startMs + step - 1) / step * step

	limit := g.Config.Provider.MaxTicksPerCall
	base := basePrice(symbol)
	symSeed := g.seed ^ symbolHash(symbol)

	out := make([]models.MRawTick, 0)
	for ts := first; ts < endMs; ts += step {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, g.tickAt(symSeed, base, ts))
	}

	return out, nil
}

// -----------------------------------------------------------------------------

func (g *SyntheticSource) tickAt(symSeed int64, base float64, ts int64) models.MRawTick {
	rng := rand.New(rand.NewSource(symSeed ^ ts))

	// smooth drift plus per-tick noise
	drift := 0.002*math.Sin(float64(ts)/3_600_000) + 0.0005*math.Sin(float64(ts)/120_000)
	mid := base * (1 + drift + (rng.Float64()-0.5)*0.0002)
	spread := base * (0.00005 + rng.Float64()*0.00005)
	if rng.Float64() < 0.01 {
		spread *= 4
	}

	bid := mid - spread/2
	ask := mid + spread/2

	var flags uint32 = models.FlagBid | models.FlagAsk
	var volume uint64
	var volumeReal float64
	last := 0.0

	if rng.Float64() < 0.6 {
		volume = uint64(1 + rng.Intn(10))
		volumeReal = float64(volume) * (0.5 + rng.Float64())
		flags |= models.FlagLast | models.FlagVolume
		if rng.Float64() < 0.5 {
			flags |= models.FlagBuy
			last = ask
		} else {
			flags |= models.FlagSell
			last = bid
		}
	}

	msc := ts
	return models.MRawTick{
		Time:       ts / 1000,
		TimeMsc:    &msc,
		Bid:        bid,
		Ask:        ask,
		Last:       last,
		Volume:     volume,
		VolumeReal: &volumeReal,
		Flags:      flags,
	}
}
