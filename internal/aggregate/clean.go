// ABOUTME: Range validation, deduplication, and z-score outlier removal.
// ABOUTME: Out-of-range values are rejected outright, never clamped.
package aggregate

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultOutlierThreshold is the z-score cutoff used when none is given.
const DefaultOutlierThreshold = 3.0

// Range is an inclusive plausibility window.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v falls inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

var (
	StepsRange     = Range{Min: 0, Max: 100_000}
	CaloriesRange  = Range{Min: 0, Max: 10_000}
	HeartRateRange = Range{Min: 30, Max: 250}
	SpO2Range      = Range{Min: 70, Max: 100}
)

// Dedup drops rows that share a key, keeping the last occurrence. Kept rows
// stay in input order.
func Dedup[T any, K comparable](rows []T, key func(T) K) []T {
	last := make(map[K]int, len(rows))
	for i, r := range rows {
		last[key(r)] = i
	}
	out := make([]T, 0, len(last))
	for i, r := range rows {
		if last[key(r)] == i {
			out = append(out, r)
		}
	}
	return out
}

// RemoveOutliers drops rows whose value lies more than threshold sample
// standard deviations from the mean. With fewer than two rows there is no
// spread to measure, so everything is kept. A non-positive threshold uses
// DefaultOutlierThreshold.
func RemoveOutliers[T any](rows []T, value func(T) float64, threshold float64) []T {
	if len(rows) < 2 {
		return rows
	}
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}
	vs := make([]float64, len(rows))
	for i, r := range rows {
		vs[i] = value(r)
	}
	mean, std := stat.MeanStdDev(vs, nil)
	if math.IsNaN(std) {
		return rows
	}
	lo, hi := mean-threshold*std, mean+threshold*std
	out := make([]T, 0, len(rows))
	for i, r := range rows {
		if vs[i] >= lo && vs[i] <= hi {
			out = append(out, r)
		}
	}
	return out
}
