// ABOUTME: Collapses minute-level samples into one row per calendar date.
// ABOUTME: Provides generic daily statistics plus steps, calories, and distance rollups.
package aggregate

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ActiveCaloriesPerMinute is the burn rate above which a minute counts as active.
const ActiveCaloriesPerMinute = 1.3

// DistanceUnitsPerKM converts raw Fitbit distance samples to kilometers.
// The raw unit is not documented by the vendor; this divisor is an
// unverified assumption and must be checked against real exports before
// the value is trusted.
const DistanceUnitsPerKM = 1_000_000

// KMToMiles converts kilometers to miles.
const KMToMiles = 0.621371

// Sample is one timestamped raw value.
type Sample struct {
	Time time.Time
	Raw  any
}

// Func selects a daily statistic.
type Func int

const (
	Sum Func = iota
	Mean
	Min
	Max
	Count
)

// DayStat holds every statistic for one date.
type DayStat struct {
	Date  civil.Date
	Count int
	Sum   float64
	Mean  float64
	Min   float64
	Max   float64
}

// Value returns the statistic selected by fn.
func (d DayStat) Value(fn Func) float64 {
	switch fn {
	case Mean:
		return d.Mean
	case Min:
		return d.Min
	case Max:
		return d.Max
	case Count:
		return float64(d.Count)
	default:
		return d.Sum
	}
}

// ToFloat coerces a raw value to a number. Strings are trimmed and parsed.
func ToFloat(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

type point struct {
	t time.Time
	v float64
}

type bucket struct {
	date   civil.Date
	points []point
}

// group buckets numeric samples by UTC date, dropping values that fail
// coercion. Buckets come back in date order; points keep input order.
func group(samples []Sample) []bucket {
	idx := make(map[civil.Date]int)
	var out []bucket
	for _, s := range samples {
		v, ok := ToFloat(s.Raw)
		if !ok {
			continue
		}
		d := civil.DateOf(s.Time.UTC())
		i, seen := idx[d]
		if !seen {
			i = len(out)
			idx[d] = i
			out = append(out, bucket{date: d})
		}
		out[i].points = append(out[i].points, point{t: s.Time, v: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

func values(pts []point) []float64 {
	vs := make([]float64, len(pts))
	for i, p := range pts {
		vs[i] = p.v
	}
	return vs
}

// Daily computes sum, mean, min, max, and count per date.
func Daily(samples []Sample) []DayStat {
	buckets := group(samples)
	out := make([]DayStat, 0, len(buckets))
	for _, b := range buckets {
		vs := values(b.points)
		out = append(out, DayStat{
			Date:  b.date,
			Count: len(vs),
			Sum:   floats.Sum(vs),
			Mean:  stat.Mean(vs, nil),
			Min:   floats.Min(vs),
			Max:   floats.Max(vs),
		})
	}
	return out
}

// StepsDay is a daily steps rollup. FirstStep and LastStep bound the
// non-zero samples and are nil when the day had none.
type StepsDay struct {
	Date         civil.Date
	Total        float64
	RecordsCount int
	FirstStep    *civil.Time
	LastStep     *civil.Time
}

// Steps sums step samples per day and records the active window.
func Steps(samples []Sample) []StepsDay {
	buckets := group(samples)
	out := make([]StepsDay, 0, len(buckets))
	for _, b := range buckets {
		day := StepsDay{Date: b.date, RecordsCount: len(b.points)}
		var first, last time.Time
		for _, p := range b.points {
			day.Total += p.v
			if p.v <= 0 {
				continue
			}
			if first.IsZero() || p.t.Before(first) {
				first = p.t
			}
			if last.IsZero() || p.t.After(last) {
				last = p.t
			}
		}
		if !first.IsZero() {
			f, l := civil.TimeOf(first.UTC()), civil.TimeOf(last.UTC())
			day.FirstStep, day.LastStep = &f, &l
		}
		out = append(out, day)
	}
	return out
}

// CaloriesDay is a daily burn rollup.
type CaloriesDay struct {
	Date          civil.Date
	Total         float64
	AvgPerMinute  float64
	ActiveMinutes int
	RecordsCount  int
}

// Calories sums per-minute burn per day. Total is rounded to a whole
// kcal and the per-minute average to two decimals.
func Calories(samples []Sample) []CaloriesDay {
	buckets := group(samples)
	out := make([]CaloriesDay, 0, len(buckets))
	for _, b := range buckets {
		vs := values(b.points)
		active := 0
		for _, v := range vs {
			if v > ActiveCaloriesPerMinute {
				active++
			}
		}
		out = append(out, CaloriesDay{
			Date:          b.date,
			Total:         math.Round(floats.Sum(vs)),
			AvgPerMinute:  Round(stat.Mean(vs, nil), 2),
			ActiveMinutes: active,
			RecordsCount:  len(vs),
		})
	}
	return out
}

// DistanceDay is a daily distance rollup.
type DistanceDay struct {
	Date         civil.Date
	KM           float64
	Miles        float64
	RecordsCount int
}

// Distance sums raw distance per day and converts to kilometers and miles,
// each rounded to two decimals.
func Distance(samples []Sample) []DistanceDay {
	buckets := group(samples)
	out := make([]DistanceDay, 0, len(buckets))
	for _, b := range buckets {
		km := Round(floats.Sum(values(b.points))/DistanceUnitsPerKM, 2)
		out = append(out, DistanceDay{
			Date:         b.date,
			KM:           km,
			Miles:        Round(km*KMToMiles, 2),
			RecordsCount: len(b.points),
		})
	}
	return out
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
