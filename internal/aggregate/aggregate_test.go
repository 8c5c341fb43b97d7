// ABOUTME: Tests for daily aggregation, validation ranges, and cleaning helpers.
// ABOUTME: Uses small hand-built sample series with known totals.
package aggregate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 8, day, hour, minute, 0, 0, time.UTC)
}

func TestStepsTotals(t *testing.T) {
	samples := []Sample{
		{Time: at(25, 6, 0), Raw: "0"},
		{Time: at(25, 6, 1), Raw: "50"},
		{Time: at(25, 6, 2), Raw: "0"},
		{Time: at(25, 6, 3), Raw: "120"},
	}

	days := Steps(samples)
	require.Len(t, days, 1)
	assert.Equal(t, 170.0, days[0].Total)
	assert.Equal(t, 4, days[0].RecordsCount)
	require.NotNil(t, days[0].FirstStep)
	assert.Equal(t, "06:01:00", days[0].FirstStep.String())
	assert.Equal(t, "06:03:00", days[0].LastStep.String())
}

func TestStepsDropsNonNumeric(t *testing.T) {
	samples := []Sample{
		{Time: at(25, 6, 0), Raw: "abc"},
		{Time: at(25, 6, 1), Raw: 10},
		{Time: at(25, 6, 2), Raw: nil},
		{Time: at(26, 6, 2), Raw: json.Number("5")},
	}

	days := Steps(samples)
	require.Len(t, days, 2)
	assert.Equal(t, "2024-08-25", days[0].Date.String())
	assert.Equal(t, 1, days[0].RecordsCount)
	assert.Equal(t, 10.0, days[0].Total)
	assert.Equal(t, 5.0, days[1].Total)
}

func TestStepsAllZeroHasNoWindow(t *testing.T) {
	days := Steps([]Sample{{Time: at(25, 1, 0), Raw: 0}, {Time: at(25, 2, 0), Raw: 0}})
	require.Len(t, days, 1)
	assert.Nil(t, days[0].FirstStep)
	assert.Nil(t, days[0].LastStep)
}

func TestCalories(t *testing.T) {
	samples := []Sample{
		{Time: at(25, 0, 0), Raw: 1.2},
		{Time: at(25, 0, 1), Raw: 1.3},
		{Time: at(25, 0, 2), Raw: 4.5},
		{Time: at(25, 0, 3), Raw: 2.0},
	}

	days := Calories(samples)
	require.Len(t, days, 1)
	assert.Equal(t, 9.0, days[0].Total)
	assert.Equal(t, 2.25, days[0].AvgPerMinute)
	assert.Equal(t, 2, days[0].ActiveMinutes, "1.3 itself is not above the threshold")
	assert.Equal(t, 4, days[0].RecordsCount)
}

func TestDistance(t *testing.T) {
	samples := []Sample{
		{Time: at(25, 8, 0), Raw: "2500000"},
		{Time: at(25, 8, 1), Raw: "2500000"},
	}

	days := Distance(samples)
	require.Len(t, days, 1)
	assert.Equal(t, 5.0, days[0].KM)
	assert.Equal(t, 3.11, days[0].Miles)
	assert.Equal(t, 2, days[0].RecordsCount)
}

func TestDailyStatistics(t *testing.T) {
	samples := []Sample{
		{Time: at(26, 1, 0), Raw: 60},
		{Time: at(25, 1, 0), Raw: 70},
		{Time: at(25, 2, 0), Raw: 50},
		{Time: at(25, 3, 0), Raw: "x"},
	}

	days := Daily(samples)
	require.Len(t, days, 2)
	d := days[0]
	assert.Equal(t, "2024-08-25", d.Date.String())
	assert.Equal(t, 2, d.Count)
	assert.Equal(t, 120.0, d.Value(Sum))
	assert.Equal(t, 60.0, d.Value(Mean))
	assert.Equal(t, 50.0, d.Value(Min))
	assert.Equal(t, 70.0, d.Value(Max))
	assert.Equal(t, 2.0, d.Value(Count))
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		raw    any
		want   float64
		wantOK bool
	}{
		{12.5, 12.5, true},
		{7, 7, true},
		{" 42 ", 42, true},
		{json.Number("3.5"), 3.5, true},
		{"", 0, false},
		{"NaN", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat(tt.raw)
		assert.Equal(t, tt.wantOK, ok, "raw=%v", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%v", tt.raw)
	}
}

func TestRanges(t *testing.T) {
	assert.True(t, StepsRange.Contains(100_000))
	assert.False(t, StepsRange.Contains(150_000))
	assert.False(t, StepsRange.Contains(-1))
	assert.True(t, CaloriesRange.Contains(0))
	assert.False(t, CaloriesRange.Contains(10_001))
	assert.False(t, HeartRateRange.Contains(29))
	assert.True(t, HeartRateRange.Contains(250))
	assert.False(t, SpO2Range.Contains(69.9))
	assert.True(t, SpO2Range.Contains(96))
}

func TestDedupKeepsLast(t *testing.T) {
	type row struct {
		key string
		val int
	}
	rows := []row{{"a", 1}, {"b", 2}, {"a", 3}, {"c", 4}, {"b", 5}}

	got := Dedup(rows, func(r row) string { return r.key })
	assert.Equal(t, []row{{"a", 3}, {"c", 4}, {"b", 5}}, got)
}

func TestRemoveOutliers(t *testing.T) {
	rows := make([]float64, 0, 21)
	for i := 0; i < 20; i++ {
		rows = append(rows, 10)
	}
	rows = append(rows, 1000)

	got := RemoveOutliers(rows, func(v float64) float64 { return v }, 0)
	assert.Len(t, got, 20)
	assert.NotContains(t, got, 1000.0)

	single := RemoveOutliers([]float64{5}, func(v float64) float64 { return v }, 3)
	assert.Equal(t, []float64{5}, single)

	flat := RemoveOutliers([]float64{3, 3, 3}, func(v float64) float64 { return v }, 3)
	assert.Len(t, flat, 3)
}
