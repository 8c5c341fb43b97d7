// ABOUTME: Fitbit CSV parsers: sleep, stress and readiness scores, AZM, HRV, SpO2, temperature.
// ABOUTME: Daily-summary CSVs map one row to one metric; AZM rows are summed per day.
package adapter

import (
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harperreed/vitals/internal/aggregate"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/timeparse"
)

// scoreLayouts accepts Fitbit formats plus zoned timestamps.
var scoreLayouts = append(append([]string{}, timeparse.FitbitLayouts...), timeparse.ZonedLayouts...)

// parseRowTime parses a row's timestamp. A value that does not parse is an
// error carrying the raw string, so the row is skipped and reported.
func parseRowTime(raw string, layouts []string) (time.Time, error) {
	ts, ok := timeparse.Parse(raw, layouts)
	if !ok {
		return time.Time{}, fmt.Errorf("unparsed timestamp %q", raw)
	}
	return ts, nil
}

func (f *Fitbit) sleepScoreCSV(path string) recordSeq {
	return rowStream(f.log, path, "sleep score", func(row csvRow) (models.Record, error) {
		ts, err := parseRowTime(row.get("timestamp"), scoreLayouts)
		if err != nil {
			return nil, err
		}
		raw := row.get("overall_score")
		if raw == "" {
			return nil, nil
		}
		score, err := parseNumber(raw)
		if err != nil {
			return nil, err
		}
		return models.NewMetricPoint(models.SourceFitbit, models.MetricSleepScore, score, ts).
			WithMetadata(map[string]any{
				"composition_score":    optNumber(row.get("composition_score")),
				"revitalization_score": optNumber(row.get("revitalization_score")),
				"duration_score":       optNumber(row.get("duration_score")),
				"deep_sleep_minutes":   optNumber(row.get("deep_sleep_in_minutes")),
				"resting_heart_rate":   optNumber(row.get("resting_heart_rate")),
				"restlessness":         optNumber(row.get("restlessness")),
			}).
			WithRaw(row.raw()), nil
	})
}

func (f *Fitbit) stressScoreCSV(path string) recordSeq {
	return rowStream(f.log, path, "stress score", func(row csvRow) (models.Record, error) {
		when := row.get("date", "timestamp")
		raw := row.get("stress_score", "overall_score")
		if when == "" || raw == "" {
			return nil, nil
		}
		ts, err := parseRowTime(when, scoreLayouts)
		if err != nil {
			return nil, err
		}
		score, err := parseNumber(raw)
		if err != nil {
			return nil, err
		}
		return models.NewMetricPoint(models.SourceFitbit, models.MetricStressScore, score, ts).
			WithRaw(row.raw()), nil
	})
}

// azmCSV sums zone minutes per day. Per-zone totals go to metadata.
func (f *Fitbit) azmCSV(path string) recordSeq {
	return batchStream(f.log, path, "active zone minutes", func(p string) ([]models.Record, []error, error) {
		rows, errs, err := readCSV(p)
		if err != nil {
			return nil, nil, err
		}
		type day struct {
			total float64
			zones map[string]float64
			rows  int
		}
		days := make(map[civil.Date]*day)
		for i, row := range rows {
			ts, err := parseRowTime(row.get("date_time"), timeparse.FitbitLayouts)
			if err != nil {
				errs = append(errs, fmt.Errorf("row %d: %w", i+1, err))
				continue
			}
			raw := row.get("total_minutes")
			if raw == "" {
				continue
			}
			minutes, err := parseNumber(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("row %d: %w", i+1, err))
				continue
			}
			zone := row.get("heart_zone_id")
			if zone == "" {
				zone = "unknown"
			}
			d := dayOf(ts)
			acc := days[d]
			if acc == nil {
				acc = &day{zones: map[string]float64{}}
				days[d] = acc
			}
			acc.total += minutes
			acc.zones[zone] += minutes
			acc.rows++
		}

		dates := make([]civil.Date, 0, len(days))
		for d := range days {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		out := make([]models.Record, 0, len(dates))
		for _, d := range dates {
			acc := days[d]
			zones := make(map[string]any, len(acc.zones))
			for z, m := range acc.zones {
				zones[z] = m
			}
			out = append(out, models.NewMetricPoint(models.SourceFitbit, models.MetricActiveZoneMinutes, acc.total, midnight(d)).
				WithDate(d).
				WithMetadata(map[string]any{
					"aggregation":   "daily_total",
					"zones":         zones,
					"records_count": acc.rows,
				}))
		}
		return out, errs, nil
	})
}

func (f *Fitbit) dailyHRVCSV(path string) recordSeq {
	return rowStream(f.log, path, "hrv", func(row csvRow) (models.Record, error) {
		ts, err := parseRowTime(row.get("timestamp", "date"), scoreLayouts)
		if err != nil {
			return nil, err
		}
		raw := row.get("rmssd")
		if raw == "" {
			return nil, nil
		}
		rmssd, err := parseNumber(raw)
		if err != nil {
			return nil, err
		}
		return models.NewMetricPoint(models.SourceFitbit, models.MetricHRVRMSSD, rmssd, ts).
			WithMetadata(map[string]any{
				"nremhr":      optNumber(row.get("nremhr")),
				"entropy":     optNumber(row.get("entropy")),
				"deep_rmssd":  optNumber(row.get("deep_rmssd")),
				"aggregation": "daily",
			}), nil
	})
}

func (f *Fitbit) dailySpO2CSV(path string) recordSeq {
	return rowStream(f.log, path, "spo2", func(row csvRow) (models.Record, error) {
		ts, err := parseRowTime(row.get("timestamp", "date"), scoreLayouts)
		if err != nil {
			return nil, err
		}
		raw := row.get("average_value")
		if raw == "" {
			return nil, nil
		}
		avg, err := parseNumber(raw)
		if err != nil {
			return nil, err
		}
		if !aggregate.SpO2Range.Contains(avg) {
			f.log.Warn("spo2 out of range", "date", ts.Format(timeparse.DateLayout), "value", avg)
			return nil, nil
		}
		return models.NewMetricPoint(models.SourceFitbit, models.MetricSpO2, avg, ts).
			WithMetadata(map[string]any{
				"lower_bound": optNumber(row.get("lower_bound")),
				"upper_bound": optNumber(row.get("upper_bound")),
				"aggregation": "daily",
			}), nil
	})
}

func (f *Fitbit) readinessCSV(path string) recordSeq {
	return rowStream(f.log, path, "readiness", func(row csvRow) (models.Record, error) {
		ts, err := parseRowTime(row.get("date", "timestamp"), scoreLayouts)
		if err != nil {
			return nil, err
		}
		raw := row.get("readiness_score_value", "score")
		if raw == "" {
			return nil, nil
		}
		score, err := parseNumber(raw)
		if err != nil {
			return nil, err
		}
		md := map[string]any{"aggregation": "daily"}
		for _, sub := range []string{"hrv_subcomponent", "sleep_subcomponent", "activity_subcomponent"} {
			if v := optNumber(row.get(sub)); v != nil {
				md[sub] = v
			}
		}
		return models.NewMetricPoint(models.SourceFitbit, models.MetricReadinessScore, score, ts).
			WithMetadata(md), nil
	})
}

func (f *Fitbit) temperatureCSV(path string) recordSeq {
	return rowStream(f.log, path, "temperature", func(row csvRow) (models.Record, error) {
		ts, err := parseRowTime(row.get("timestamp", "date", "sleep_start"), scoreLayouts)
		if err != nil {
			return nil, err
		}
		raw := row.get("nightly_temperature", "temperature_samples", "computed_temperature")
		if raw == "" {
			return nil, nil
		}
		temp, err := parseNumber(raw)
		if err != nil {
			return nil, err
		}
		return models.NewMetricPoint(models.SourceFitbit, models.MetricSkinTemperature, temp, ts).
			WithMetadata(map[string]any{"aggregation": "nightly"}), nil
	})
}

// userSleepScoresCSV pulls overnight resting heart rate out of the Google
// data export. score_time marks when the sleep ended.
func (f *Fitbit) userSleepScoresCSV(path string) recordSeq {
	return rowStream(f.log, path, "user sleep scores", func(row csvRow) (models.Record, error) {
		ts, err := parseRowTime(row.get("score_time"), timeparse.ZonedLayouts)
		if err != nil {
			return nil, err
		}
		rhr, err := parseNumber(row.get("resting_heart_rate"))
		if err != nil || rhr <= 0 {
			return nil, nil
		}
		return models.NewMetricPoint(models.SourceFitbit, models.MetricRestingHeartRate, rhr, ts).
			WithMetadata(map[string]any{
				"source_file": "UserSleepScores",
				"sleep_id":    row.get("sleep_id"),
			}), nil
	})
}
