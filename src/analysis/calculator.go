package analysis

import (
	"math"
	"sort"

	"microstructure-cache/src/analysis/core"
	"microstructure-cache/src/models"
)

const nearZero = 1e-9

// MetricsCalculator turns a tick window into a metrics bundle. It holds no
// state besides its default thresholds and is safe for concurrent use.
type MetricsCalculator struct {
	Thresholds models.MCalculatorThresholds
	resampler  TimeSeriesResampler
}

// -----------------------------------------------------------------------------

func NewMetricsCalculator(thresholds models.MCalculatorThresholds) *MetricsCalculator {
	return &MetricsCalculator{Thresholds: NormalizeThresholds(thresholds)}
}

// -----------------------------------------------------------------------------

// NormalizeThresholds replaces unset (non-positive) values with defaults.
func NormalizeThresholds(t models.MCalculatorThresholds) models.MCalculatorThresholds {
	d := models.DefaultThresholds()
	if t.AbsorptionVolumeMultiplier <= 0 {
		t.AbsorptionVolumeMultiplier = d.AbsorptionVolumeMultiplier
	}
	if t.AbsorptionPriceTolerance <= 0 {
		t.AbsorptionPriceTolerance = d.AbsorptionPriceTolerance
	}
	if t.AbsorptionBinSeconds <= 0 {
		t.AbsorptionBinSeconds = d.AbsorptionBinSeconds
	}
	if t.AbsorptionTopN <= 0 {
		t.AbsorptionTopN = d.AbsorptionTopN
	}
	if t.VoidSpreadMultiplier <= 0 {
		t.VoidSpreadMultiplier = d.VoidSpreadMultiplier
	}
	if t.CVDSlopeThreshold <= 0 {
		t.CVDSlopeThreshold = d.CVDSlopeThreshold
	}
	if t.CVDSamplePoints < 2 {
		t.CVDSamplePoints = d.CVDSamplePoints
	}
	return t
}

// -----------------------------------------------------------------------------

// Calculate uses the calculator's own thresholds.
func (c *MetricsCalculator) Calculate(ticks []models.MTick) models.MMetricsBundle {
	return c.CalculateWith(ticks, c.Thresholds)
}

// -----------------------------------------------------------------------------

// CalculateWith computes every metric of a time-ordered tick window.
// Fewer than two ticks yield the neutral bundle.
func (c *MetricsCalculator) CalculateWith(ticks []models.MTick, thresholds models.MCalculatorThresholds) models.MMetricsBundle {
	if len(ticks) < 2 {
		return models.NeutralBundle(len(ticks))
	}
	th := NormalizeThresholds(thresholds)

	bundle := models.NeutralBundle(len(ticks))

	// 1. Trade flow
	delta, cvd, tradeTicks := computeDelta(ticks)
	bundle.DeltaVolume = delta
	bundle.CumulativeDelta = delta
	bundle.TradeTickRatio = float64(tradeTicks) / float64(len(ticks))
	bundle.DominantSide = dominantSide(delta)
	bundle.CVDSlope = cvdSlope(cvd, th.CVDSamplePoints, th.CVDSlopeThreshold)

	// 2. Spreads and voids
	spreads := make([]float64, 0, len(ticks))
	for _, t := range ticks {
		if t.Ask > t.Bid {
			spreads = append(spreads, t.Spread())
		}
	}
	bundle.SpreadStats, bundle.LiquidityVoids = computeSpreads(spreads, th.VoidSpreadMultiplier)

	// 3. Volatility
	prices := make([]float64, len(ticks))
	for i, t := range ticks {
		prices[i] = representativePrice(t)
	}
	bundle.RealizedVolatility = realizedVolatility(prices)

	// 4. Absorption
	bundle.Absorption = c.computeAbsorption(ticks, prices, th)

	// 5. Activity
	bundle.TickRate, bundle.MaxGapMs = computeActivity(ticks)

	bundle.WindowStart = ticks[0].Time
	bundle.WindowEnd = ticks[len(ticks)-1].Time
	return bundle
}

// -----------------------------------------------------------------------------

// VolatilityRatio compares window volatility against the baseline.
func VolatilityRatio(window, baseline float64) float64 {
	return core.CalculateRatio(window, baseline, 1.0)
}

// -----------------------------------------------------------------------------

func representativePrice(t models.MTick) float64 {
	if t.Last > 0 {
		return t.Last
	}
	return t.Bid
}

// -----------------------------------------------------------------------------

// computeDelta returns buy minus sell volume, the running CVD series over
// trade ticks, and the number of trade ticks.
func computeDelta(ticks []models.MTick) (float64, []float64, int) {
	var running float64
	cvd := make([]float64, 0, len(ticks))
	trades := 0

	for _, t := range ticks {
		if !t.CarriesTrade() {
			continue
		}
		trades++

		vol := t.TradeVolume()
		switch {
		case t.IsBuy() && t.IsSell():
			// ambiguous aggressor
		case t.IsBuy():
			running += vol
		case t.IsSell():
			running -= vol
		}
		cvd = append(cvd, running)
	}

	return running, cvd, trades
}

// -----------------------------------------------------------------------------

func dominantSide(delta float64) string {
	switch {
	case delta > 0:
		return models.SideBuy
	case delta < 0:
		return models.SideSell
	default:
		return models.SideNeutral
	}
}

// -----------------------------------------------------------------------------

// cvdSlope samples the CVD series at evenly spaced points and compares the
// first and last sample.
func cvdSlope(cvd []float64, points int, thresholdPct float64) string {
	if len(cvd) < 2 {
		return models.SlopeFlat
	}

	samples := sampleSeries(cvd, points)
	first := samples[0]
	last := samples[len(samples)-1]

	if math.Abs(first) < nearZero {
		switch {
		case last > nearZero:
			return models.SlopeUp
		case last < -nearZero:
			return models.SlopeDown
		default:
			return models.SlopeFlat
		}
	}

	change := core.RelativeChangePercent(last, first)
	switch {
	case change > thresholdPct:
		return models.SlopeUp
	case change < -thresholdPct:
		return models.SlopeDown
	default:
		return models.SlopeFlat
	}
}

// -----------------------------------------------------------------------------

// sampleSeries picks up to n evenly spaced values, always including both ends.
func sampleSeries(series []float64, n int) []float64 {
	if n >= len(series) || n < 2 {
		return series
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = series[i*(len(series)-1)/(n-1)]
	}
	return out
}

// -----------------------------------------------------------------------------

func computeSpreads(spreads []float64, voidMultiplier float64) (models.MSpreadStats, models.MLiquidityVoids) {
	stats := models.MSpreadStats{}
	voids := models.MLiquidityVoids{}
	if len(spreads) == 0 {
		return stats, voids
	}

	mean, std := core.CalculateSampleMeanStd(spreads)
	stats.Mean = mean
	stats.Std = std
	stats.Max = core.CalculateMax(spreads)

	threshold := mean * voidMultiplier
	var voidSizes []float64
	for _, s := range spreads {
		if s > threshold {
			voidSizes = append(voidSizes, s)
		}
	}

	stats.WideningEventCount = len(voidSizes)
	voids.Count = len(voidSizes)
	voids.AvgSize = core.CalculateMean(voidSizes)
	return stats, voids
}

// -----------------------------------------------------------------------------

func realizedVolatility(prices []float64) float64 {
	returns := core.CalculateLogReturns(prices)
	if len(returns) < 2 {
		return 0
	}
	_, std := core.CalculateSampleMeanStd(returns)
	if math.IsNaN(std) || math.IsInf(std, 0) {
		return 0
	}
	return std
}

// -----------------------------------------------------------------------------

type absorptionZone struct {
	price    float64
	volume   float64
	strength float64
}

// computeAbsorption finds bins with heavy volume and a narrow price range.
func (c *MetricsCalculator) computeAbsorption(ticks []models.MTick, prices []float64, th models.MCalculatorThresholds) models.MAbsorption {
	result := models.MAbsorption{ZonePrices: []float64{}}

	timestamps := make([]int64, len(ticks))
	for i, t := range ticks {
		timestamps[i] = t.TimeMsc
	}
	bins := c.resampler.ResampleIndices(timestamps, th.AbsorptionBinSeconds*1000)
	if len(bins) == 0 {
		return result
	}

	volumes := make([]float64, len(bins))
	for i, b := range bins {
		for _, idx := range b.Indices {
			volumes[i] += ticks[idx].TradeVolume()
		}
	}

	threshold := core.CalculateMean(volumes) * th.AbsorptionVolumeMultiplier
	if threshold <= 0 {
		return result
	}

	var zones []absorptionZone
	for i, b := range bins {
		if volumes[i] <= threshold {
			continue
		}

		binPrices := make([]float64, 0, len(b.Indices))
		for _, idx := range b.Indices {
			if prices[idx] > 0 {
				binPrices = append(binPrices, prices[idx])
			}
		}
		high, low, avg := core.ComputeRange(binPrices)
		if avg <= 0 || core.CalculateRangePercent(high, low, avg) >= th.AbsorptionPriceTolerance {
			continue
		}

		zones = append(zones, absorptionZone{
			price:    avg,
			volume:   volumes[i],
			strength: math.Min(volumes[i]/(threshold*2), 1.0),
		})
	}

	result.ZoneCount = len(zones)
	if len(zones) == 0 {
		return result
	}

	sort.SliceStable(zones, func(i, j int) bool {
		if zones[i].strength != zones[j].strength {
			return zones[i].strength > zones[j].strength
		}
		return zones[i].volume > zones[j].volume
	})
	if len(zones) > th.AbsorptionTopN {
		zones = zones[:th.AbsorptionTopN]
	}

	strengths := make([]float64, len(zones))
	for i, z := range zones {
		result.ZonePrices = append(result.ZonePrices, z.price)
		strengths[i] = z.strength
	}
	result.AvgStrength = core.CalculateMean(strengths)
	return result
}

// -----------------------------------------------------------------------------

func computeActivity(ticks []models.MTick) (float64, int64) {
	var maxGap int64
	for i := 1; i < len(ticks); i++ {
		if gap := ticks[i].TimeMsc - ticks[i-1].TimeMsc; gap > maxGap {
			maxGap = gap
		}
	}

	elapsed := float64(ticks[len(ticks)-1].TimeMsc-ticks[0].TimeMsc) / 1000
	if elapsed <= 0 {
		return 0, maxGap
	}
	return float64(len(ticks)) / elapsed, maxGap
}
