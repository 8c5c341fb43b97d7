// ABOUTME: Fitbit adapter for Google Takeout exports: detection, routing, JSON parsers.
// ABOUTME: Minute-level series are rolled up to daily rows through the aggregate package.
package adapter

import (
	"encoding/json"
	"fmt"
	"iter"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/aggregate"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/timeparse"
)

// Folder names that mark a Takeout Fitbit export root.
var fitbitFolders = []string{
	"Global Export Data",
	"Sleep Score",
	"Active Zone Minutes (AZM)",
	"Health Fitness Data_GoogleData",
}

// Lowercased filename fragments of known Fitbit artifacts.
var fitbitFilePatterns = []string{
	"heart_rate-",
	"sleep-",
	"steps-",
	"calories-",
	"distance-",
	"active_minutes-",
	"sedentary_minutes-",
	"food_logs-",
	"sleep_score",
	"stress score",
	"active zone minutes",
	"daily heart rate variability summary",
	"daily spo2",
	"daily readiness score",
	"computed temperature",
	"usersleepscores_",
}

// activityLevels maps Fitbit's per-level minute files to metric types. Each
// level is its own metric so the four files never collide on a natural key.
var activityLevels = []struct {
	prefix string
	metric models.MetricType
	level  string
}{
	{"very_active_minutes-", models.MetricVeryActiveMinutes, "very_active"},
	{"moderately_active_minutes-", models.MetricModeratelyActiveMinutes, "moderately_active"},
	{"lightly_active_minutes-", models.MetricLightlyActiveMinutes, "lightly_active"},
	{"sedentary_minutes-", models.MetricSedentaryMinutes, "sedentary"},
}

// Resting heart rate files sometimes carry a bare short date.
var restingLayouts = append(append([]string{}, timeparse.FitbitLayouts...), "01/02/06")

// Fitbit parses Fitbit data exported through Google Takeout.
type Fitbit struct {
	batchID uuid.UUID
	opts    Options
	log     *log.Logger
}

// NewFitbit creates a Fitbit adapter bound to a batch.
func NewFitbit(batchID uuid.UUID, opts Options) *Fitbit {
	return &Fitbit{batchID: batchID, opts: opts, log: opts.logger("fitbit")}
}

// Name implements Adapter.
func (f *Fitbit) Name() models.Source { return models.SourceFitbit }

// BatchID returns the batch this instance was resolved for.
func (f *Fitbit) BatchID() uuid.UUID { return f.batchID }

// Detect checks for Takeout folder names or Fitbit artifact filenames.
func (f *Fitbit) Detect(path string) bool {
	switch {
	case isDir(path):
		for _, d := range fitbitFolders {
			if exists(filepath.Join(path, d)) {
				return true
			}
		}
	case isFile(path):
		name := strings.ToLower(filepath.Base(path))
		for _, p := range fitbitFilePatterns {
			if strings.Contains(name, p) {
				return true
			}
		}
	}
	return false
}

// Parse implements Adapter.
func (f *Fitbit) Parse(path string) *ParseResult {
	return Collect(path, f.Stream(path))
}

// Stream implements Streamer.
func (f *Fitbit) Stream(path string) iter.Seq2[models.Record, error] {
	switch {
	case isDir(path):
		return f.streamDir(path)
	case isFile(path):
		return f.routeFile(path)
	}
	return failed(fmt.Errorf("fitbit: %s is not a readable file or directory", path))
}

func (f *Fitbit) streamDir(root string) recordSeq {
	var seqs []recordSeq

	for _, p := range glob(filepath.Join(root, "Global Export Data"), "*") {
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".json" || ext == ".csv" {
			seqs = append(seqs, f.routeFile(p))
		}
	}
	if p := filepath.Join(root, "Sleep Score", "sleep_score.csv"); isFile(p) {
		seqs = append(seqs, f.sleepScoreCSV(p))
	}
	if p := filepath.Join(root, "Stress Score", "Stress Score.csv"); isFile(p) {
		seqs = append(seqs, f.stressScoreCSV(p))
	}
	for _, p := range glob(filepath.Join(root, "Active Zone Minutes (AZM)"), "*.csv") {
		seqs = append(seqs, f.azmCSV(p))
	}
	for _, p := range glob(filepath.Join(root, "Heart Rate Variability"), "Daily Heart Rate Variability Summary*.csv") {
		seqs = append(seqs, f.dailyHRVCSV(p))
	}
	for _, p := range glob(filepath.Join(root, "Oxygen Saturation (SpO2)"), "Daily SpO2*.csv") {
		seqs = append(seqs, f.dailySpO2CSV(p))
	}
	for _, p := range glob(filepath.Join(root, "Daily Readiness"), "Daily Readiness Score*.csv") {
		seqs = append(seqs, f.readinessCSV(p))
	}
	for _, p := range glob(filepath.Join(root, "Temperature"), "Computed Temperature*.csv") {
		seqs = append(seqs, f.temperatureCSV(p))
	}
	for _, p := range glob(filepath.Join(root, "Health Fitness Data_GoogleData"), "UserSleepScores_*.csv") {
		seqs = append(seqs, f.userSleepScoresCSV(p))
	}

	return concat(seqs...)
}

// routeFile picks a parser by filename. Patterns that are substrings of
// other patterns are checked after the longer ones.
func (f *Fitbit) routeFile(path string) recordSeq {
	name := strings.ToLower(filepath.Base(path))
	empty := concat()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		switch {
		case strings.Contains(name, "resting_heart_rate-"):
			return f.restingHRJSON(path)
		case strings.Contains(name, "heart_rate-"):
			if !f.opts.IncludeMinuteHeartRate {
				f.log.Debug("skipping minute heart rate", "file", filepath.Base(path))
				return empty
			}
			return f.heartRateJSON(path)
		case strings.Contains(name, "calories-"):
			if !f.opts.IncludeCaloriesBurned {
				f.log.Debug("skipping calories burned", "file", filepath.Base(path))
				return empty
			}
			return f.caloriesJSON(path)
		case strings.Contains(name, "sleep-"):
			return f.sleepJSON(path)
		case strings.Contains(name, "steps-"):
			return f.stepsJSON(path)
		case strings.Contains(name, "distance-"):
			return f.distanceJSON(path)
		case strings.Contains(name, "food_logs-"):
			return f.foodLogsJSON(path)
		}
		for _, lvl := range activityLevels {
			if strings.Contains(name, lvl.prefix) {
				return f.activeMinutesJSON(path, lvl.metric, lvl.level)
			}
		}
	case ".csv":
		switch {
		case strings.Contains(name, "usersleepscores_"):
			return f.userSleepScoresCSV(path)
		case strings.Contains(name, "sleep_score"):
			return f.sleepScoreCSV(path)
		case strings.Contains(name, "stress score"):
			return f.stressScoreCSV(path)
		case strings.Contains(name, "active zone minutes"):
			return f.azmCSV(path)
		case strings.Contains(name, "daily heart rate variability summary"):
			return f.dailyHRVCSV(path)
		case strings.Contains(name, "daily spo2"):
			return f.dailySpO2CSV(path)
		case strings.Contains(name, "daily readiness score"):
			return f.readinessCSV(path)
		case strings.Contains(name, "computed temperature"):
			return f.temperatureCSV(path)
		}
	}
	return empty
}

// fitbitSleep mirrors one entry of sleep-YYYY-MM-DD.json.
type fitbitSleep struct {
	LogID         json.Number `json:"logId"`
	DateOfSleep   string      `json:"dateOfSleep"`
	StartTime     string      `json:"startTime"`
	EndTime       string      `json:"endTime"`
	Duration      int64       `json:"duration"`
	MinutesAsleep *int        `json:"minutesAsleep"`
	MinutesAwake  *int        `json:"minutesAwake"`
	Efficiency    *int        `json:"efficiency"`
	Type          string      `json:"type"`
	LogType       string      `json:"logType"`
	InfoCode      *int        `json:"infoCode"`
	Levels        struct {
		Summary map[string]struct {
			Minutes *int `json:"minutes"`
		} `json:"summary"`
		Data []models.SleepStage `json:"data"`
	} `json:"levels"`
}

func (f *Fitbit) sleepJSON(path string) recordSeq {
	return entryStream(f.log, path, "sleep", func(raw json.RawMessage) (models.Record, error) {
		var e fitbitSleep
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		start, ok := timeparse.ParseFitbit(e.StartTime)
		if !ok {
			return nil, fmt.Errorf("unparsed startTime %q", e.StartTime)
		}
		end, ok := timeparse.ParseFitbit(e.EndTime)
		if !ok {
			return nil, fmt.Errorf("unparsed endTime %q", e.EndTime)
		}
		night, err := civil.ParseDate(e.DateOfSleep)
		if err != nil {
			return nil, fmt.Errorf("invalid dateOfSleep %q", e.DateOfSleep)
		}

		stage := func(name string) *int {
			if s, ok := e.Levels.Summary[name]; ok {
				return s.Minutes
			}
			return nil
		}

		return &models.SleepRecord{
			RecordBase: models.RecordBase{
				Source:    models.SourceFitbit,
				Timestamp: start,
				Date:      night,
				Metadata: map[string]any{
					"type":      e.Type,
					"log_type":  e.LogType,
					"info_code": e.InfoCode,
				},
				RawPayload: rawMap(raw),
			},
			Start:           start,
			End:             end,
			DurationMinutes: int(e.Duration / 60000),
			Detail: models.SleepDetail{
				SourceLogID:   e.LogID.String(),
				MinutesAsleep: e.MinutesAsleep,
				MinutesAwake:  e.MinutesAwake,
				Efficiency:    e.Efficiency,
				DeepMinutes:   stage("deep"),
				LightMinutes:  stage("light"),
				REMMinutes:    stage("rem"),
				Stages:        e.Levels.Data,
			},
		}, nil
	})
}

// fitbitSample is the {dateTime, value} shape shared by minute-level files.
type fitbitSample struct {
	DateTime string          `json:"dateTime"`
	Value    json.RawMessage `json:"value"`
}

// minuteSamples loads a minute-level file. Entries that are not objects or
// whose timestamp does not parse are reported and skipped. Repeated
// timestamps keep the last entry so overlapping exports are not counted
// twice.
func minuteSamples(path string, value func(json.RawMessage) any) ([]aggregate.Sample, []error, error) {
	entries, err := readJSONArray(path)
	if err != nil {
		return nil, nil, err
	}
	samples := make([]aggregate.Sample, 0, len(entries))
	var errs []error
	for i, raw := range entries {
		var s fitbitSample
		if err := json.Unmarshal(raw, &s); err != nil {
			errs = append(errs, fmt.Errorf("%s entry %d: %w", filepath.Base(path), i, err))
			continue
		}
		t, ok := timeparse.ParseFitbit(s.DateTime)
		if !ok {
			errs = append(errs, fmt.Errorf("%s entry %d: unparsed dateTime %q", filepath.Base(path), i, s.DateTime))
			continue
		}
		samples = append(samples, aggregate.Sample{Time: t, Raw: value(s.Value)})
	}
	samples = aggregate.Dedup(samples, func(s aggregate.Sample) int64 { return s.Time.UnixNano() })
	return samples, errs, nil
}

// scalarValue decodes "123", 123 or "12.5" into something ToFloat accepts.
func scalarValue(raw json.RawMessage) any {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func (f *Fitbit) stepsJSON(path string) recordSeq {
	return batchStream(f.log, path, "steps", func(p string) ([]models.Record, []error, error) {
		samples, errs, err := minuteSamples(p, scalarValue)
		if err != nil {
			return nil, nil, err
		}
		var valid []aggregate.StepsDay
		for _, day := range aggregate.Steps(samples) {
			if !aggregate.StepsRange.Contains(day.Total) {
				f.log.Warn("steps out of range", "date", day.Date, "total", day.Total)
				continue
			}
			valid = append(valid, day)
		}
		var out []models.Record
		for _, day := range dropOutliers(f.opts, f.log, "steps", valid, func(d aggregate.StepsDay) float64 { return d.Total }) {
			md := map[string]any{
				"aggregation":     "daily_total",
				"records_count":   day.RecordsCount,
				"first_step_time": "",
				"last_step_time":  "",
			}
			if day.FirstStep != nil {
				md["first_step_time"] = day.FirstStep.String()
				md["last_step_time"] = day.LastStep.String()
			}
			out = append(out, models.NewMetricPoint(models.SourceFitbit, models.MetricSteps, day.Total, midnight(day.Date)).
				WithDate(day.Date).
				WithMetadata(md))
		}
		return out, errs, nil
	})
}

func (f *Fitbit) distanceJSON(path string) recordSeq {
	return batchStream(f.log, path, "distance", func(p string) ([]models.Record, []error, error) {
		samples, errs, err := minuteSamples(p, scalarValue)
		if err != nil {
			return nil, nil, err
		}
		var out []models.Record
		days := dropOutliers(f.opts, f.log, "distance", aggregate.Distance(samples), func(d aggregate.DistanceDay) float64 { return d.KM })
		for _, day := range days {
			out = append(out, models.NewMetricPoint(models.SourceFitbit, models.MetricDistance, day.KM, midnight(day.Date)).
				WithDate(day.Date).
				WithMetadata(map[string]any{
					"aggregation":    "daily_total",
					"distance_miles": day.Miles,
					"records_count":  day.RecordsCount,
				}))
		}
		return out, errs, nil
	})
}

func (f *Fitbit) caloriesJSON(path string) recordSeq {
	return batchStream(f.log, path, "calories", func(p string) ([]models.Record, []error, error) {
		samples, errs, err := minuteSamples(p, scalarValue)
		if err != nil {
			return nil, nil, err
		}
		var valid []aggregate.CaloriesDay
		for _, day := range aggregate.Calories(samples) {
			if !aggregate.CaloriesRange.Contains(day.Total) {
				f.log.Warn("calories out of range", "date", day.Date, "total", day.Total)
				continue
			}
			valid = append(valid, day)
		}
		var out []models.Record
		for _, day := range dropOutliers(f.opts, f.log, "calories", valid, func(d aggregate.CaloriesDay) float64 { return d.Total }) {
			out = append(out, models.NewMetricPoint(models.SourceFitbit, models.MetricCaloriesBurned, day.Total, midnight(day.Date)).
				WithDate(day.Date).
				WithMetadata(map[string]any{
					"aggregation":    "daily_total",
					"avg_per_minute": day.AvgPerMinute,
					"active_minutes": day.ActiveMinutes,
					"records_count":  day.RecordsCount,
				}))
		}
		return out, errs, nil
	})
}

// bpmValue pulls bpm out of {"bpm": 61, "confidence": 2}.
func bpmValue(raw json.RawMessage) any {
	var v struct {
		BPM json.Number `json:"bpm"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v.BPM
}

func (f *Fitbit) heartRateJSON(path string) recordSeq {
	return batchStream(f.log, path, "heart rate", func(p string) ([]models.Record, []error, error) {
		samples, errs, err := minuteSamples(p, bpmValue)
		if err != nil {
			return nil, nil, err
		}
		days := dropOutliers(f.opts, f.log, "heart rate", aggregate.Daily(samples), func(d aggregate.DayStat) float64 { return d.Value(aggregate.Mean) })
		var out []models.Record
		for _, day := range days {
			mean := aggregate.Round(day.Value(aggregate.Mean), 1)
			if !aggregate.HeartRateRange.Contains(mean) {
				f.log.Warn("heart rate out of range", "date", day.Date, "mean", mean)
				continue
			}
			out = append(out, models.NewMetricPoint(models.SourceFitbit, models.MetricHeartRate, mean, midnight(day.Date)).
				WithDate(day.Date).
				WithMetadata(map[string]any{
					"aggregation":   "daily_mean",
					"min":           day.Min,
					"max":           day.Max,
					"records_count": day.Count,
				}))
		}
		return out, errs, nil
	})
}

func (f *Fitbit) restingHRJSON(path string) recordSeq {
	return entryStream(f.log, path, "resting heart rate", func(raw json.RawMessage) (models.Record, error) {
		var e fitbitSample
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		t, ok := timeparse.Parse(e.DateTime, restingLayouts)
		if !ok {
			return nil, fmt.Errorf("unparsed dateTime %q", e.DateTime)
		}

		var value float64
		var nested struct {
			Value            *float64 `json:"value"`
			RestingHeartRate *float64 `json:"restingHeartRate"`
		}
		if err := json.Unmarshal(e.Value, &nested); err == nil {
			switch {
			case nested.Value != nil:
				value = *nested.Value
			case nested.RestingHeartRate != nil:
				value = *nested.RestingHeartRate
			}
		} else {
			v, ok := aggregate.ToFloat(scalarValue(e.Value))
			if !ok {
				return nil, fmt.Errorf("invalid resting heart rate value %s", string(e.Value))
			}
			value = v
		}

		if value == 0 {
			return nil, nil
		}
		if !aggregate.HeartRateRange.Contains(value) {
			f.log.Warn("resting heart rate out of range", "date", t.Format(timeparse.DateLayout), "value", value)
			return nil, nil
		}
		return models.NewMetricPoint(models.SourceFitbit, models.MetricRestingHeartRate, value, t).
			WithRaw(rawMap(raw)), nil
	})
}

func (f *Fitbit) activeMinutesJSON(path string, metric models.MetricType, level string) recordSeq {
	return entryStream(f.log, path, "active minutes", func(raw json.RawMessage) (models.Record, error) {
		var e fitbitSample
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		t, ok := timeparse.ParseFitbit(e.DateTime)
		if !ok {
			return nil, fmt.Errorf("unparsed dateTime %q", e.DateTime)
		}
		v, ok := aggregate.ToFloat(scalarValue(e.Value))
		if !ok {
			return nil, fmt.Errorf("invalid minutes value %s", string(e.Value))
		}
		return models.NewMetricPoint(models.SourceFitbit, metric, v, t).
			WithMetadata(map[string]any{"activity_level": level}).
			WithRaw(rawMap(raw)), nil
	})
}

// fitbitFoodLog is one meal entry of food_logs-*.json.
type fitbitFoodLog struct {
	LogDate           string `json:"logDate"`
	NutritionalValues struct {
		Calories float64 `json:"calories"`
		Protein  float64 `json:"protein"`
		Carbs    float64 `json:"carbs"`
		Fat      float64 `json:"fat"`
		Fiber    float64 `json:"fiber"`
		Sodium   float64 `json:"sodium"`
	} `json:"nutritionalValues"`
}

type foodTotals struct {
	calories, protein, carbs, fat, fiber, sodium float64
	entries                                      int
}

// foodLogsJSON sums meal entries into one nutrition record per day.
func (f *Fitbit) foodLogsJSON(path string) recordSeq {
	return batchStream(f.log, path, "food_logs", func(p string) ([]models.Record, []error, error) {
		entries, err := readJSONArray(p)
		if err != nil {
			return nil, nil, err
		}
		var errs []error
		days := make(map[civil.Date]*foodTotals)
		for i, raw := range entries {
			var e fitbitFoodLog
			if err := json.Unmarshal(raw, &e); err != nil {
				errs = append(errs, fmt.Errorf("%s entry %d: %w", filepath.Base(p), i, err))
				continue
			}
			if e.LogDate == "" {
				continue
			}
			d, err := civil.ParseDate(e.LogDate)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s entry %d: invalid logDate %q", filepath.Base(p), i, e.LogDate))
				continue
			}
			t := days[d]
			if t == nil {
				t = &foodTotals{}
				days[d] = t
			}
			nv := e.NutritionalValues
			t.calories += nv.Calories
			t.protein += nv.Protein
			t.carbs += nv.Carbs
			t.fat += nv.Fat
			t.fiber += nv.Fiber
			t.sodium += nv.Sodium
			t.entries++
		}

		dates := make([]civil.Date, 0, len(days))
		for d := range days {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		var out []models.Record
		for _, d := range dates {
			t := days[d]
			if t.calories <= 0 {
				continue
			}
			out = append(out, &models.NutritionRecord{
				RecordBase: models.RecordBase{
					Source:    models.SourceFitbit,
					Timestamp: midnight(d),
					Date:      d,
					Metadata: map[string]any{
						"meal_entries": t.entries,
						"data_source":  "food_logs",
					},
				},
				Detail: models.NutritionDetail{
					Calories:    models.Float(t.calories),
					ProteinG:    models.Float(aggregate.Round(t.protein, 2)),
					CarbsG:      models.Float(aggregate.Round(t.carbs, 2)),
					FatG:        models.Float(aggregate.Round(t.fat, 2)),
					FiberG:      models.Float(aggregate.Round(t.fiber, 2)),
					SodiumMG:    models.Float(aggregate.Round(t.sodium, 2)),
					MealEntries: t.entries,
				},
			})
		}
		return out, errs, nil
	})
}

// dayOf returns the UTC calendar date of t.
func dayOf(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}
