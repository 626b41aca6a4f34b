package core

import "math"

// -----------------------------------------------------------------------------

// ComputeRange returns high, low and average of a price series.
func ComputeRange(prices []float64) (high, low, avg float64) {
	if len(prices) == 0 {
		return 0, 0, 0
	}

	high = -math.MaxFloat64
	low = math.MaxFloat64
	sum := 0.0
	for _, p := range prices {
		if p > high {
			high = p
		}
		if p < low {
			low = p
		}
		sum += p
	}
	return high, low, sum / float64(len(prices))
}

// -----------------------------------------------------------------------------

// RelativeChangePercent is the change from reference to current in percent
// of |reference|, so a rise reads positive even for a negative reference.
func RelativeChangePercent(current, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	return (current - reference) / math.Abs(reference) * 100
}

// -----------------------------------------------------------------------------

// CalculateRangePercent is (high-low)/avg in percent.
func CalculateRangePercent(high, low, avg float64) float64 {
	if avg <= 0 {
		return 0
	}
	return (high - low) / avg * 100
}

// -----------------------------------------------------------------------------

// CalculateLogReturns returns ln(p[i]/p[i-1]); non-positive prices are skipped.
func CalculateLogReturns(prices []float64) []float64 {
	var usable []float64
	for _, p := range prices {
		if p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p) {
			usable = append(usable, p)
		}
	}
	if len(usable) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(usable)-1)
	for i := 1; i < len(usable); i++ {
		returns = append(returns, math.Log(usable[i]/usable[i-1]))
	}
	return returns
}

// -----------------------------------------------------------------------------

// CalculateRatio divides with a neutral fallback for a missing denominator.
func CalculateRatio(current, reference, neutral float64) float64 {
	if reference <= 0 || math.IsNaN(reference) || math.IsNaN(current) {
		return neutral
	}
	return current / reference
}
