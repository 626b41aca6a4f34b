package fetcher

import (
	"context"
	"math"
	"sort"
	"time"

	"microstructure-cache/src/helpers"
	"microstructure-cache/src/interfaces"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"
)

const (
	defaultTicksPerHour = 3600
	chunkSafetyFactor   = 0.8
)

// TickFetcher pulls validated tick windows from the provider, splitting
// large requests into chunks that stay under the provider's per-call cap.
type TickFetcher struct {
	Config   *models.MConfig
	Provider interfaces.ITickProvider
	Logger   *logger.Logger
	now      func() time.Time
}

type timeChunk struct {
	start int64
	end   int64
}

// -----------------------------------------------------------------------------

func NewTickFetcher(cfg *models.MConfig, provider interfaces.ITickProvider, log *logger.Logger) *TickFetcher {
	return &TickFetcher{
		Config:   cfg,
		Provider: provider,
		Logger:   log,
		now:      time.Now,
	}
}

// -----------------------------------------------------------------------------

// TicksPerHour returns the estimate used for chunk planning.
func (f *TickFetcher) TicksPerHour(symbol string) float64 {
	if v, ok := f.Config.Provider.SymbolTicksPerHour[symbol]; ok && v > 0 {
		return v
	}
	if f.Config.Provider.TicksPerHour > 0 {
		return f.Config.Provider.TicksPerHour
	}
	return defaultTicksPerHour
}

// -----------------------------------------------------------------------------

// Fetch returns the validated ticks in [start, end), ordered by TimeMsc.
// ok is false only when the provider cannot be reached at all. Chunk errors
// are logged and skipped, so the result may be partial.
func (f *TickFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.MTick, bool) {
	ticks := make([]models.MTick, 0)
	if !end.After(start) {
		return ticks, true
	}

	if err := f.Provider.EnsureConnected(ctx); err != nil {
		f.Logger.Error("Provider %s not connected for %s: %v", f.Provider.Name(), symbol, err)
		return ticks, false
	}

	// providers work in whole seconds; round end up so the last partial
	// second is requested and ValidateTicks trims it back to end
	startSec, endSec := start.Unix(), ceilUnix(end)
	chunks := f.planChunks(symbol, startSec, endSec)
	if len(chunks) > 1 {
		f.Logger.Debug("Fetching %s in %d chunks [%d -> %d]", symbol, len(chunks), startSec, endSec)
	}

	var raw []models.MRawTick
	for i, c := range chunks {
		if i > 0 && !f.pause(ctx) {
			f.Logger.Warning("Fetch for %s cancelled after %d/%d chunks", symbol, i, len(chunks))
			break
		}

		part, err := f.fetchChunk(ctx, symbol, c)
		if err != nil {
			f.Logger.Warning("Chunk %d/%d for %s failed [%d -> %d]: %v", i+1, len(chunks), symbol, c.start, c.end, err)
			if helpers.IsConnectivityError(err) {
				// the remaining chunks would only time out against the same feed
				f.Logger.Error("Provider %s unreachable, keeping %d/%d chunks for %s", f.Provider.Name(), i, len(chunks), symbol)
				break
			}
			continue
		}
		raw = append(raw, part...)
	}

	ticks = ValidateTicks(raw, start.UnixMilli(), end.UnixMilli())
	return ticks, true
}

// -----------------------------------------------------------------------------

func ceilUnix(t time.Time) int64 {
	sec := t.Unix()
	if t.UnixMilli() > sec*1000 {
		sec++
	}
	return sec
}

// -----------------------------------------------------------------------------

func (f *TickFetcher) fetchChunk(ctx context.Context, symbol string, c timeChunk) ([]models.MRawTick, error) {
	callCtx := ctx
	if secs := f.Config.Provider.CallTimeoutSeconds; secs > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}
	return f.Provider.FetchTicksInRange(callCtx, symbol, c.start, c.end)
}

// -----------------------------------------------------------------------------

func (f *TickFetcher) pause(ctx context.Context) bool {
	d := time.Duration(f.Config.Provider.ChunkPauseMs) * time.Millisecond
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// -----------------------------------------------------------------------------

// planChunks splits [start, end) so that each chunk is expected to hold at
// most 80% of the per-call cap.
func (f *TickFetcher) planChunks(symbol string, start, end int64) []timeChunk {
	total := end - start
	if total <= 0 {
		return nil
	}

	limit := f.Config.Provider.MaxTicksPerCall
	estimate := float64(total) / 3600 * f.TicksPerHour(symbol)
	if limit <= 0 || estimate <= float64(limit) {
		return []timeChunk{{start: start, end: end}}
	}

	n := int64(math.Ceil(estimate / (float64(limit) * chunkSafetyFactor)))
	size := int64(math.Ceil(float64(total) / float64(n)))
	if size < 1 {
		size = 1
	}

	chunks := make([]timeChunk, 0, n)
	for s := start; s < end; s += size {
		e := s + size
		if e > end {
			e = end
		}
		chunks = append(chunks, timeChunk{start: s, end: e})
	}
	return chunks
}

// -----------------------------------------------------------------------------

// validQuote needs finite prices with 0 < bid < ask. NaN fails every
// comparison, so the check is written in the positive form.
func validQuote(r models.MRawTick) bool {
	if math.IsInf(r.Bid, 0) || math.IsInf(r.Ask, 0) || math.IsNaN(r.Last) || math.IsInf(r.Last, 0) {
		return false
	}
	return r.Bid > 0 && r.Ask > 0 && r.Ask > r.Bid
}

// -----------------------------------------------------------------------------

// ValidateTicks drops invalid quotes, fills optional fields, keeps ticks with
// TimeMsc in [startMs, endMs), sorts them and removes exact duplicates.
func ValidateTicks(raw []models.MRawTick, startMs, endMs int64) []models.MTick {
	out := make([]models.MTick, 0, len(raw))
	seen := make(map[models.MTick]struct{}, len(raw))

	for _, r := range raw {
		if !validQuote(r) {
			continue
		}

		t := models.MTick{
			Time:   r.Time,
			Bid:    r.Bid,
			Ask:    r.Ask,
			Last:   r.Last,
			Volume: r.Volume,
			Flags:  r.Flags,
		}
		if r.TimeMsc != nil && *r.TimeMsc > 0 {
			t.TimeMsc = *r.TimeMsc
		} else {
			t.TimeMsc = r.Time * 1000
		}
		if t.Time <= 0 {
			t.Time = t.TimeMsc / 1000
		}
		if r.VolumeReal != nil {
			t.VolumeReal = *r.VolumeReal
		} else {
			t.VolumeReal = float64(r.Volume)
		}

		if t.TimeMsc < startMs || t.TimeMsc >= endMs {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimeMsc < out[j].TimeMsc
	})
	return out
}

// -----------------------------------------------------------------------------

// FetchPreviousMinutes returns the last n minutes up to now.
func (f *TickFetcher) FetchPreviousMinutes(ctx context.Context, symbol string, minutes int) ([]models.MTick, bool) {
	end := f.now()
	return f.Fetch(ctx, symbol, end.Add(-time.Duration(minutes)*time.Minute), end)
}

// -----------------------------------------------------------------------------

// FetchPreviousHour returns the previous full clock hour, e.g. 13:00-14:00 at 14:25.
func (f *TickFetcher) FetchPreviousHour(ctx context.Context, symbol string) ([]models.MTick, bool) {
	start, end := PreviousHourRange(f.now())
	return f.Fetch(ctx, symbol, start, end)
}

// -----------------------------------------------------------------------------

func (f *TickFetcher) FetchPrevious24Hours(ctx context.Context, symbol string) ([]models.MTick, bool) {
	end := f.now()
	return f.Fetch(ctx, symbol, end.Add(-24*time.Hour), end)
}

// -----------------------------------------------------------------------------

// PreviousHourRange returns the last completed clock hour before now.
func PreviousHourRange(now time.Time) (time.Time, time.Time) {
	end := now.Truncate(time.Hour)
	return end.Add(-time.Hour), end
}
