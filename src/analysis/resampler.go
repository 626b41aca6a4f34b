package analysis

import (
	"sort"

	"microstructure-cache/src/models"
)

// TimeBin is a run of consecutive ticks that fall in one fixed-size time bin.
type TimeBin struct {
	Indices   []int
	StartTime int64 // ms, inclusive
	EndTime   int64 // ms, exclusive
}

// TimeSeriesResampler groups time-ordered ticks into epoch-aligned bins.
type TimeSeriesResampler struct{}

// -----------------------------------------------------------------------------

// ResampleIndices returns the non-empty bins of width binMs for timestamps
// that are already sorted ascending.
func (r *TimeSeriesResampler) ResampleIndices(timestamps []int64, binMs int64) []TimeBin {
	if len(timestamps) == 0 || binMs <= 0 {
		return []TimeBin{}
	}

	var bins []TimeBin
	current := TimeBin{StartTime: floorTo(timestamps[0], binMs)}
	current.EndTime = current.StartTime + binMs

	for i, ts := range timestamps {
		if ts >= current.EndTime {
			bins = append(bins, current)
			start := floorTo(ts, binMs)
			current = TimeBin{StartTime: start, EndTime: start + binMs}
		}
		current.Indices = append(current.Indices, i)
	}
	bins = append(bins, current)

	return bins
}

// -----------------------------------------------------------------------------

func floorTo(ts, width int64) int64 {
	q := ts / width
	if ts < 0 && ts%width != 0 {
		q--
	}
	return q * width
}

// -----------------------------------------------------------------------------

// SliceTicks returns the sub-slice of time-ordered ticks with TimeMsc in
// [startMs, endMs). The result shares the backing array.
func SliceTicks(ticks []models.MTick, startMs, endMs int64) []models.MTick {
	lo := sort.Search(len(ticks), func(i int) bool {
		return ticks[i].TimeMsc >= startMs
	})
	hi := sort.Search(len(ticks), func(i int) bool {
		return ticks[i].TimeMsc >= endMs
	})
	if lo >= hi {
		return ticks[:0:0]
	}
	return ticks[lo:hi]
}
