// ABOUTME: Apple Health adapter for Health Auto Export .hae files and JSON exports.
// ABOUTME: Both layouts load into one series shape before conversion to records.
package adapter

import (
	"encoding/json"
	"fmt"
	"iter"
	"os"
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

// AppleEpochOffset is the number of seconds between the Unix epoch and
// the Core Data epoch (2001-01-01).
const AppleEpochOffset int64 = 978307200

const (
	kgPerPound   = 0.45359237
	kmPerMile    = 1.609344
	kjPerKcal    = 4.184
	minutesInHr  = 60.0
	exportPrefix = "healthautoexport"
)

// appleTime converts Core Data seconds to UTC.
func appleTime(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec+AppleEpochOffset, nsec).UTC()
}

// wallUTC keeps the wall clock of t and relabels it UTC, so a local-time
// export lands on the calendar date it was recorded on.
func wallUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// haeFile is the root of a per-metric .hae file.
type haeFile struct {
	Metric string            `json:"metric"`
	Date   float64           `json:"date"`
	Data   []json.RawMessage `json:"data"`
}

type haeFilePoint struct {
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
	Unit    string   `json:"unit"`
	Qty     *float64 `json:"qty"`
	Min     *float64 `json:"min"`
	Avg     *float64 `json:"avg"`
	Max     *float64 `json:"max"`
	Sources []struct {
		Name string `json:"name"`
	} `json:"sources"`
	TotalSleep *float64 `json:"totalSleep"`
	Awake      *float64 `json:"awake"`
	Core       *float64 `json:"core"`
	Deep       *float64 `json:"deep"`
	REM        *float64 `json:"rem"`
}

// exportFile is the root of a HealthAutoExport-*.json export.
type exportFile struct {
	Data struct {
		Metrics []struct {
			Name  string            `json:"name"`
			Units string            `json:"units"`
			Data  []json.RawMessage `json:"data"`
		} `json:"metrics"`
	} `json:"data"`
}

type exportPoint struct {
	Date       string   `json:"date"`
	Qty        *float64 `json:"qty"`
	Min        *float64 `json:"Min"`
	Avg        *float64 `json:"Avg"`
	Max        *float64 `json:"Max"`
	Source     string   `json:"source"`
	TotalSleep *float64 `json:"totalSleep"`
	Asleep     *float64 `json:"asleep"`
	InBed      *float64 `json:"inBed"`
	Awake      *float64 `json:"awake"`
	Core       *float64 `json:"core"`
	Deep       *float64 `json:"deep"`
	REM        *float64 `json:"rem"`
	SleepStart string   `json:"sleepStart"`
	SleepEnd   string   `json:"sleepEnd"`
}

// haePoint is one reading in either layout. Sleep fields are in hours.
// Aggregated is set when the point already summarizes a whole night.
type haePoint struct {
	Start, End time.Time
	Qty        *float64
	Min, Avg   *float64
	Max        *float64
	Source     string
	Aggregated bool

	TotalSleep, Asleep, InBed *float64
	Awake, Core, Deep, REM    *float64
}

type haeSeries struct {
	name   string
	unit   string
	points []haePoint
}

// AppleHealth parses Health Auto Export output.
type AppleHealth struct {
	batchID uuid.UUID
	opts    Options
	log     *log.Logger
}

// NewAppleHealth creates an Apple Health adapter bound to a batch.
func NewAppleHealth(batchID uuid.UUID, opts Options) *AppleHealth {
	return &AppleHealth{batchID: batchID, opts: opts, log: opts.logger("apple_health")}
}

// Name implements Adapter.
func (a *AppleHealth) Name() models.Source { return models.SourceAppleHealth }

// BatchID returns the batch this instance was resolved for.
func (a *AppleHealth) BatchID() uuid.UUID { return a.batchID }

func isExportJSON(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	return strings.HasPrefix(name, exportPrefix) && strings.HasSuffix(name, ".json")
}

func isHAE(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".hae")
}

// files lists every export file under a directory, one level deep.
func (a *AppleHealth) files(dir string) []string {
	var out []string
	for _, pattern := range []string{"*.hae", "*/*.hae"} {
		out = append(out, glob(dir, pattern)...)
	}
	for _, p := range append(glob(dir, "*.json"), glob(dir, "*/*.json")...) {
		if isExportJSON(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Detect accepts .hae files, HealthAutoExport JSON files, and directories
// holding either.
func (a *AppleHealth) Detect(path string) bool {
	switch {
	case isFile(path):
		return isHAE(path) || isExportJSON(path)
	case isDir(path):
		return len(a.files(path)) > 0
	}
	return false
}

// Parse implements Adapter.
func (a *AppleHealth) Parse(path string) *ParseResult {
	return Collect(path, a.Stream(path))
}

// Stream implements Streamer. Nutrition is summed across files, so every
// file is loaded before records are emitted.
func (a *AppleHealth) Stream(path string) iter.Seq2[models.Record, error] {
	var paths []string
	switch {
	case isFile(path):
		paths = []string{path}
	case isDir(path):
		paths = a.files(path)
	default:
		return failed(fmt.Errorf("apple health: %s is not a readable file or directory", path))
	}

	return func(yield func(models.Record, error) bool) {
		var series []haeSeries
		for _, p := range paths {
			s, errs, err := a.load(p)
			if err != nil {
				if !yield(nil, fileError(a.log, p, "health export", err)) {
					return
				}
				continue
			}
			for _, e := range errs {
				if !yield(nil, e) {
					return
				}
			}
			series = append(series, s...)
		}
		for _, r := range a.convert(series) {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (a *AppleHealth) load(path string) ([]haeSeries, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if isHAE(path) {
		return loadHAE(path, data)
	}
	return loadExport(path, data)
}

func loadHAE(path string, data []byte) ([]haeSeries, []error, error) {
	var f haeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, err
	}
	if f.Metric == "" {
		return nil, nil, fmt.Errorf("missing metric name")
	}
	s := haeSeries{name: f.Metric}
	var errs []error
	for i, raw := range f.Data {
		var p haeFilePoint
		if err := json.Unmarshal(raw, &p); err != nil {
			errs = append(errs, fmt.Errorf("%s entry %d: %w", filepath.Base(path), i, err))
			continue
		}
		if s.unit == "" {
			s.unit = p.Unit
		}
		pt := haePoint{
			Start:      appleTime(p.Start),
			End:        appleTime(p.End),
			Qty:        p.Qty,
			Min:        p.Min,
			Avg:        p.Avg,
			Max:        p.Max,
			TotalSleep: p.TotalSleep,
			Awake:      p.Awake,
			Core:       p.Core,
			Deep:       p.Deep,
			REM:        p.REM,
		}
		if len(p.Sources) > 0 {
			pt.Source = p.Sources[0].Name
		}
		s.points = append(s.points, pt)
	}
	return []haeSeries{s}, errs, nil
}

func loadExport(path string, data []byte) ([]haeSeries, []error, error) {
	var f exportFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, err
	}
	var out []haeSeries
	var errs []error
	for _, m := range f.Data.Metrics {
		s := haeSeries{name: m.Name, unit: m.Units}
		for i, raw := range m.Data {
			var p exportPoint
			if err := json.Unmarshal(raw, &p); err != nil {
				errs = append(errs, fmt.Errorf("%s %s entry %d: %w", filepath.Base(path), m.Name, i, err))
				continue
			}
			ts, ok := timeparse.Parse(p.Date, timeparse.ZonedLayouts)
			if !ok {
				errs = append(errs, fmt.Errorf("%s %s entry %d: unparsed date %q", filepath.Base(path), m.Name, i, p.Date))
				continue
			}
			ts = wallUTC(ts)
			pt := haePoint{
				Start:      ts,
				End:        ts,
				Qty:        p.Qty,
				Min:        p.Min,
				Avg:        p.Avg,
				Max:        p.Max,
				Source:     p.Source,
				TotalSleep: p.TotalSleep,
				Asleep:     p.Asleep,
				InBed:      p.InBed,
				Awake:      p.Awake,
				Core:       p.Core,
				Deep:       p.Deep,
				REM:        p.REM,
				Aggregated: p.TotalSleep != nil || p.Asleep != nil,
			}
			if t, ok := timeparse.Parse(p.SleepStart, timeparse.ZonedLayouts); ok {
				pt.Start = wallUTC(t)
			}
			if t, ok := timeparse.Parse(p.SleepEnd, timeparse.ZonedLayouts); ok {
				pt.End = wallUTC(t)
			}
			s.points = append(s.points, pt)
		}
		out = append(out, s)
	}
	return out, errs, nil
}

// nutritionAcc sums dietary series for one day.
type nutritionAcc struct {
	calories, protein, carbs, fat, fiber, sodium *float64
	entries                                      int
}

func addTo(dst **float64, v float64) {
	if *dst == nil {
		*dst = models.Float(0)
	}
	**dst += v
}

func (a *AppleHealth) convert(series []haeSeries) []models.Record {
	var out []models.Record
	nutrition := make(map[civil.Date]*nutritionAcc)

	for _, s := range series {
		switch s.name {
		case "step_count":
			out = append(out, a.steps(s)...)
		case "walking_running_distance":
			out = append(out, a.distance(s)...)
		case "resting_heart_rate":
			out = append(out, a.points(s, models.MetricRestingHeartRate, 1, &aggregate.HeartRateRange)...)
		case "heart_rate_variability":
			out = append(out, a.points(s, models.MetricHRVSDNN, 1, nil)...)
		case "blood_oxygen_saturation":
			out = append(out, a.points(s, models.MetricSpO2, 1, &aggregate.SpO2Range)...)
		case "weight_body_mass":
			factor := 1.0
			if strings.EqualFold(s.unit, "lb") || strings.EqualFold(s.unit, "lbs") {
				factor = kgPerPound
			}
			out = append(out, a.points(s, models.MetricWeight, factor, nil)...)
		case "body_fat_percentage":
			out = append(out, a.points(s, models.MetricBodyFat, 1, nil)...)
		case "respiratory_rate":
			out = append(out, a.points(s, models.MetricRespiratoryRate, 1, nil)...)
		case "heart_rate":
			if a.opts.IncludeMinuteHeartRate {
				out = append(out, a.heartRate(s)...)
			}
		case "active_energy":
			if a.opts.IncludeCaloriesBurned {
				out = append(out, a.activeEnergy(s)...)
			}
		case "sleep_analysis":
			out = append(out, a.sleep(s)...)
		case "dietary_energy", "protein", "carbohydrates", "total_fat", "fiber", "sodium":
			a.collectNutrition(s, nutrition)
		default:
			a.log.Debug("metric not mapped", "metric", s.name)
		}
	}

	return append(out, nutritionRecords(nutrition)...)
}

// qtySamples turns quantity points into aggregation samples.
func qtySamples(s haeSeries, factor float64) []aggregate.Sample {
	samples := make([]aggregate.Sample, 0, len(s.points))
	for _, p := range s.points {
		if p.Qty == nil {
			continue
		}
		samples = append(samples, aggregate.Sample{Time: p.Start, Raw: *p.Qty * factor})
	}
	return samples
}

func (a *AppleHealth) steps(s haeSeries) []models.Record {
	var valid []aggregate.StepsDay
	for _, day := range aggregate.Steps(qtySamples(s, 1)) {
		if !aggregate.StepsRange.Contains(day.Total) {
			a.log.Warn("steps out of range", "date", day.Date, "total", day.Total)
			continue
		}
		valid = append(valid, day)
	}
	var out []models.Record
	for _, day := range dropOutliers(a.opts, a.log, "steps", valid, func(d aggregate.StepsDay) float64 { return d.Total }) {
		out = append(out, models.NewMetricPoint(models.SourceAppleHealth, models.MetricSteps, day.Total, midnight(day.Date)).
			WithDate(day.Date).
			WithMetadata(map[string]any{
				"aggregation":   "daily_total",
				"records_count": day.RecordsCount,
			}))
	}
	return out
}

func (a *AppleHealth) distance(s haeSeries) []models.Record {
	factor := 1.0
	if strings.EqualFold(s.unit, "mi") {
		factor = kmPerMile
	}
	var out []models.Record
	for _, day := range aggregate.Daily(qtySamples(s, factor)) {
		km := aggregate.Round(day.Sum, 2)
		out = append(out, models.NewMetricPoint(models.SourceAppleHealth, models.MetricDistance, km, midnight(day.Date)).
			WithDate(day.Date).
			WithMetadata(map[string]any{
				"aggregation":    "daily_total",
				"distance_miles": aggregate.Round(km*aggregate.KMToMiles, 2),
				"records_count":  day.Count,
			}))
	}
	return out
}

// points maps each quantity point to one metric. Fractions are scaled to
// percent for percentage metrics.
func (a *AppleHealth) points(s haeSeries, mt models.MetricType, factor float64, valid *aggregate.Range) []models.Record {
	percent := models.MetricUnits[mt] == "%"
	var out []models.Record
	for _, p := range s.points {
		if p.Qty == nil {
			continue
		}
		v := *p.Qty * factor
		if percent && v > 0 && v <= 1 {
			v *= 100
		}
		v = aggregate.Round(v, 2)
		if valid != nil && !valid.Contains(v) {
			a.log.Warn("value out of range", "metric", mt, "value", v)
			continue
		}
		md := map[string]any{"hae_metric": s.name}
		if p.Source != "" {
			md["device"] = p.Source
		}
		out = append(out, models.NewMetricPoint(models.SourceAppleHealth, mt, v, p.Start).WithMetadata(md))
	}
	return out
}

func (a *AppleHealth) heartRate(s haeSeries) []models.Record {
	samples := make([]aggregate.Sample, 0, len(s.points))
	for _, p := range s.points {
		v := p.Avg
		if v == nil {
			v = p.Qty
		}
		if v == nil {
			continue
		}
		samples = append(samples, aggregate.Sample{Time: p.Start, Raw: *v})
	}
	var out []models.Record
	for _, day := range aggregate.Daily(samples) {
		mean := aggregate.Round(day.Mean, 1)
		if !aggregate.HeartRateRange.Contains(mean) {
			a.log.Warn("heart rate out of range", "date", day.Date, "mean", mean)
			continue
		}
		out = append(out, models.NewMetricPoint(models.SourceAppleHealth, models.MetricHeartRate, mean, midnight(day.Date)).
			WithDate(day.Date).
			WithMetadata(map[string]any{
				"aggregation":   "daily_mean",
				"min":           day.Min,
				"max":           day.Max,
				"records_count": day.Count,
			}))
	}
	return out
}

func (a *AppleHealth) activeEnergy(s haeSeries) []models.Record {
	factor := 1.0
	if strings.EqualFold(s.unit, "kj") {
		factor = 1 / kjPerKcal
	}
	var out []models.Record
	for _, day := range aggregate.Daily(qtySamples(s, factor)) {
		total := aggregate.Round(day.Sum, 0)
		if !aggregate.CaloriesRange.Contains(total) {
			a.log.Warn("calories out of range", "date", day.Date, "total", total)
			continue
		}
		out = append(out, models.NewMetricPoint(models.SourceAppleHealth, models.MetricCaloriesBurned, total, midnight(day.Date)).
			WithDate(day.Date).
			WithMetadata(map[string]any{
				"aggregation":   "daily_total",
				"records_count": day.Count,
			}))
	}
	return out
}

func hoursToMinutes(h *float64) *int {
	if h == nil {
		return nil
	}
	return models.Int(int(aggregate.Round(*h*minutesInHr, 0)))
}

// sleepGap splits per-stage points into separate sessions.
const sleepGap = time.Hour

// sleep emits one session per night. Aggregated points already describe a
// night. Per-stage points are chained into sessions while consecutive
// stages are less than sleepGap apart; a session is dated by when it ends.
func (a *AppleHealth) sleep(s haeSeries) []models.Record {
	type night struct {
		start, end             time.Time
		awake, core, deep, rem float64
		hasStages              bool
	}

	var out []models.Record
	var staged []haePoint
	for _, p := range s.points {
		if p.Aggregated {
			out = append(out, aggregatedSleep(p))
			continue
		}
		staged = append(staged, p)
	}
	sort.Slice(staged, func(i, j int) bool { return staged[i].Start.Before(staged[j].Start) })

	var nights []*night
	var cur *night
	for _, p := range staged {
		if cur == nil || p.Start.Sub(cur.end) > sleepGap {
			cur = &night{start: p.Start, end: p.End}
			nights = append(nights, cur)
		}
		if p.End.After(cur.end) {
			cur.end = p.End
		}
		for _, st := range []struct {
			v   *float64
			acc *float64
		}{{p.Awake, &cur.awake}, {p.Core, &cur.core}, {p.Deep, &cur.deep}, {p.REM, &cur.rem}} {
			if st.v != nil && *st.v > 0 {
				*st.acc += *st.v
				cur.hasStages = true
			}
		}
	}

	for _, n := range nights {
		if !n.hasStages {
			continue
		}
		asleep := n.core + n.deep + n.rem
		out = append(out, &models.SleepRecord{
			RecordBase: models.RecordBase{
				Source:    models.SourceAppleHealth,
				Timestamp: n.start,
				Date:      dayOf(n.end),
				Metadata:  map[string]any{"format": "stages"},
			},
			Start:           n.start,
			End:             n.end,
			DurationMinutes: int(n.end.Sub(n.start).Minutes()),
			Detail: models.SleepDetail{
				MinutesAsleep: hoursToMinutes(&asleep),
				MinutesAwake:  hoursToMinutes(&n.awake),
				DeepMinutes:   hoursToMinutes(&n.deep),
				LightMinutes:  hoursToMinutes(&n.core),
				REMMinutes:    hoursToMinutes(&n.rem),
			},
		})
	}
	return out
}

// aggregatedSleep converts a nightly summary point. The night is labeled
// with the date the export assigns it.
func aggregatedSleep(p haePoint) *models.SleepRecord {
	asleep := p.Asleep
	if asleep == nil {
		asleep = p.TotalSleep
	}
	duration := int(p.End.Sub(p.Start).Minutes())
	if duration <= 0 && asleep != nil {
		duration = *hoursToMinutes(asleep)
	}
	detail := models.SleepDetail{
		MinutesAsleep: hoursToMinutes(asleep),
		MinutesAwake:  hoursToMinutes(p.Awake),
		DeepMinutes:   hoursToMinutes(p.Deep),
		LightMinutes:  hoursToMinutes(p.Core),
		REMMinutes:    hoursToMinutes(p.REM),
	}
	if p.InBed != nil && *p.InBed > 0 && asleep != nil {
		detail.Efficiency = models.Int(int(aggregate.Round(*asleep / *p.InBed * 100, 0)))
	}
	md := map[string]any{"format": "aggregated"}
	if p.Source != "" {
		md["device"] = p.Source
	}
	return &models.SleepRecord{
		RecordBase: models.RecordBase{
			Source:    models.SourceAppleHealth,
			Timestamp: p.Start,
			Date:      dayOf(p.End),
			Metadata:  md,
		},
		Start:           p.Start,
		End:             p.End,
		DurationMinutes: duration,
		Detail:          detail,
	}
}

func (a *AppleHealth) collectNutrition(s haeSeries, days map[civil.Date]*nutritionAcc) {
	factor := 1.0
	switch {
	case s.name == "dietary_energy" && strings.EqualFold(s.unit, "kj"):
		factor = 1 / kjPerKcal
	case s.name == "sodium" && strings.EqualFold(s.unit, "g"):
		factor = 1000
	}
	for _, p := range s.points {
		if p.Qty == nil {
			continue
		}
		d := dayOf(p.Start)
		acc := days[d]
		if acc == nil {
			acc = &nutritionAcc{}
			days[d] = acc
		}
		v := *p.Qty * factor
		switch s.name {
		case "dietary_energy":
			addTo(&acc.calories, v)
			acc.entries++
		case "protein":
			addTo(&acc.protein, v)
		case "carbohydrates":
			addTo(&acc.carbs, v)
		case "total_fat":
			addTo(&acc.fat, v)
		case "fiber":
			addTo(&acc.fiber, v)
		case "sodium":
			addTo(&acc.sodium, v)
		}
	}
}

func roundPtr(v *float64, decimals int) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(aggregate.Round(*v, decimals))
}

func nutritionRecords(days map[civil.Date]*nutritionAcc) []models.Record {
	dates := make([]civil.Date, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var out []models.Record
	for _, d := range dates {
		acc := days[d]
		if acc.calories == nil || *acc.calories <= 0 {
			continue
		}
		out = append(out, &models.NutritionRecord{
			RecordBase: models.RecordBase{
				Source:    models.SourceAppleHealth,
				Timestamp: midnight(d),
				Date:      d,
				Metadata:  map[string]any{"meal_entries": acc.entries},
			},
			Detail: models.NutritionDetail{
				Calories:    roundPtr(acc.calories, 0),
				ProteinG:    roundPtr(acc.protein, 2),
				CarbsG:      roundPtr(acc.carbs, 2),
				FatG:        roundPtr(acc.fat, 2),
				FiberG:      roundPtr(acc.fiber, 2),
				SodiumMG:    roundPtr(acc.sodium, 2),
				MealEntries: acc.entries,
			},
		})
	}
	return out
}
