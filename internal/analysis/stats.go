package analysis

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// finite drops NaN and infinite values
func finite(values []float64) stats.Float64Data {
	out := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// Quantile returns the p-quantile of values with linear interpolation
// between closest ranks, ignoring NaN. It returns NaN for empty input.
func Quantile(values []float64, p float64) float64 {
	data := finite(values)
	if len(data) == 0 || p < 0 || p > 1 {
		return math.NaN()
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// mostFrequent returns the smallest of the most frequent values, or
// fallback when values is empty
func mostFrequent(values []float64, fallback float64) float64 {
	data := finite(values)
	if len(data) == 0 {
		return fallback
	}
	modes, err := stats.Mode(data)
	if err != nil || len(modes) == 0 {
		// Every value is unique; take the smallest.
		lowest, err := stats.Min(data)
		if err != nil {
			return fallback
		}
		return lowest
	}
	return modes[0]
}

// rmspe is the root mean squared difference of two aligned series
func rmspe(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.NaN()
	}
	diffs := make(stats.Float64Data, len(a))
	for i := range a {
		d := a[i] - b[i]
		diffs[i] = d * d
	}
	mean, err := stats.Mean(diffs)
	if err != nil {
		return math.NaN()
	}
	return math.Sqrt(mean)
}
