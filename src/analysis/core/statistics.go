package core

import "math"

// -----------------------------------------------------------------------------

// CalculateMean returns the arithmetic mean, 0 for empty input.
func CalculateMean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// -----------------------------------------------------------------------------

// CalculateSampleMeanStd computes mean and sample standard deviation (n-1).
// The deviation is 0 when there is at most one value.
func CalculateSampleMeanStd(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}

	mean := CalculateMean(data)
	if len(data) == 1 {
		return mean, 0
	}

	varianceSum := 0.0
	for _, v := range data {
		varianceSum += (v - mean) * (v - mean)
	}
	std := math.Sqrt(varianceSum / float64(len(data)-1))
	if math.IsNaN(std) {
		return mean, 0
	}
	return mean, std
}

// -----------------------------------------------------------------------------

// CalculateMax returns the largest value, 0 for empty input.
func CalculateMax(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := data[0]
	for _, v := range data[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
