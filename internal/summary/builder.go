// ABOUTME: Daily summary builder that recomputes one (user, date) row from stored records.
// ABOUTME: Every rebuild resets all fields first, so rerunning it is always safe.
package summary

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/charmbracelet/log"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
)

// Builder rebuilds daily summaries from a Store.
type Builder struct {
	store storage.Store
	log   *log.Logger
}

// NewBuilder returns a Builder over store.
func NewBuilder(store storage.Store, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{store: store, log: logger.With("component", "summary")}
}

// Rebuild recomputes the summary for userID on date and stores it.
// UpdatedAt moves only when a recomputed value differs from the stored row.
func (b *Builder) Rebuild(ctx context.Context, date civil.Date, userID string) (*models.DailySummary, error) {
	var prev *models.DailySummary
	s, err := b.store.GetSummary(ctx, userID, date)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s = models.NewDailySummary(userID, date)
	case err != nil:
		return nil, fmt.Errorf("load summary: %w", err)
	default:
		stored := *s
		prev = &stored
		s.Reset()
	}

	day := storage.Filter{UserID: userID}.OnDate(date)

	nutrition, err := b.store.ListNutrition(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load nutrition: %w", err)
	}
	populateNutrition(s, latestNutrition(nutrition))

	sessions, err := b.store.ListSleep(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load sleep: %w", err)
	}
	populateSleep(s, mainSleep(sessions))

	metrics, err := b.store.ListMetrics(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	latest := latestByType(metrics)
	populateActivity(s, latest)
	populateVitals(s, latest)
	populateScores(s, latest)

	s.ComputeDerived()
	if prev != nil && s.SameData(prev) {
		b.log.Debug("summary unchanged", "user", userID, "date", date)
		return s, nil
	}
	s.UpdatedAt = time.Now().UTC()

	if err := b.store.SaveSummary(ctx, s); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	b.log.Debug("rebuilt summary", "user", userID, "date", date, "completeness", s.DataCompleteness)
	return s, nil
}

// RebuildRange rebuilds every date from from to to inclusive.
func (b *Builder) RebuildRange(ctx context.Context, from, to civil.Date, userID string) ([]*models.DailySummary, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("rebuild range: end %s is before start %s", to, from)
	}
	var out []*models.DailySummary
	for d := from; !d.After(to); d = d.AddDays(1) {
		s, err := b.Rebuild(ctx, d, userID)
		if err != nil {
			return out, fmt.Errorf("rebuild %s: %w", d, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// RebuildAll rebuilds every date that has at least one stored record and
// returns how many summaries were written.
func (b *Builder) RebuildAll(ctx context.Context, userID string) (int, error) {
	dates, err := b.store.RecordDates(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list record dates: %w", err)
	}
	for i, d := range dates {
		if _, err := b.Rebuild(ctx, d, userID); err != nil {
			return i, fmt.Errorf("rebuild %s: %w", d, err)
		}
	}
	return len(dates), nil
}

// latestNutrition picks the most recently stored day; ties go to the
// lower source name.
func latestNutrition(days []*models.NutritionDay) *models.NutritionDay {
	if len(days) == 0 {
		return nil
	}
	return slices.MaxFunc(days, func(x, y *models.NutritionDay) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(y.Source), string(x.Source))
	})
}

// mainSleep picks the longest session; ties go to the earlier start, then
// the lower source log id.
func mainSleep(sessions []*models.SleepSession) *models.SleepSession {
	if len(sessions) == 0 {
		return nil
	}
	return slices.MaxFunc(sessions, func(x, y *models.SleepSession) int {
		if c := x.DurationMinutes - y.DurationMinutes; c != 0 {
			return c
		}
		if c := y.StartTime.Compare(x.StartTime); c != 0 {
			return c
		}
		return strings.Compare(y.SourceLogID, x.SourceLogID)
	})
}

// latestByType keeps the newest record per metric type; ties go to the
// lower source name.
func latestByType(metrics []*models.MetricRecord) map[models.MetricType]*models.MetricRecord {
	out := make(map[models.MetricType]*models.MetricRecord)
	for _, m := range metrics {
		cur, ok := out[m.MetricType]
		if !ok || newer(m, cur) {
			out[m.MetricType] = m
		}
	}
	return out
}

func newer(a, b *models.MetricRecord) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.Source < b.Source
}

func populateNutrition(s *models.DailySummary, n *models.NutritionDay) {
	if n == nil {
		return
	}
	s.Calories = n.Calories
	s.ProteinG = n.ProteinG
	s.CarbsG = n.CarbsG
	s.FatG = n.FatG
	s.FiberG = n.FiberG
	s.SodiumMG = n.SodiumMG
}

func populateSleep(s *models.DailySummary, sl *models.SleepSession) {
	if sl == nil {
		return
	}
	s.SleepDurationMin = models.Int(sl.DurationMinutes)
	s.SleepMinutesAsleep = sl.MinutesAsleep
	s.SleepMinutesAwake = sl.MinutesAwake
	s.DeepSleepMin = sl.DeepMinutes
	s.LightSleepMin = sl.LightMinutes
	s.REMSleepMin = sl.REMMinutes
	s.SleepEfficiency = sl.Efficiency
	s.SleepScore = sl.SleepScore
	if !sl.StartTime.IsZero() {
		t := civil.TimeOf(sl.StartTime.UTC())
		s.SleepStartTime = &t
	}
	if !sl.EndTime.IsZero() {
		t := civil.TimeOf(sl.EndTime.UTC())
		s.SleepEndTime = &t
	}
}

func populateActivity(s *models.DailySummary, latest map[models.MetricType]*models.MetricRecord) {
	s.Steps = intValue(latest[models.MetricSteps])
	s.DistanceKM = floatValue(latest[models.MetricDistance])
	s.ActiveZoneMinutes = intValue(latest[models.MetricActiveZoneMinutes])
	s.VeryActiveMinutes = intValue(latest[models.MetricVeryActiveMinutes])
	s.ModeratelyActiveMinutes = intValue(latest[models.MetricModeratelyActiveMinutes])
	s.LightlyActiveMinutes = intValue(latest[models.MetricLightlyActiveMinutes])
	s.SedentaryMinutes = intValue(latest[models.MetricSedentaryMinutes])
}

func populateVitals(s *models.DailySummary, latest map[models.MetricType]*models.MetricRecord) {
	s.RestingHR = intValue(latest[models.MetricRestingHeartRate])

	if hrv := latest[models.MetricHRVRMSSD]; hrv != nil {
		s.HRVRMSSD = models.Float(hrv.Value)
		if deep, ok := hrv.MetadataFloat("deep_rmssd"); ok {
			s.HRVDeepRMSSD = models.Float(deep)
		}
	}

	if spo2 := latest[models.MetricSpO2]; spo2 != nil {
		s.SpO2Avg = models.Float(spo2.Value)
		for _, k := range []string{"lower_bound", "min_value"} {
			if v, ok := spo2.MetadataFloat(k); ok {
				s.SpO2Min = models.Float(v)
				break
			}
		}
	}

	s.SkinTempDeviation = floatValue(latest[models.MetricSkinTemperature])
}

func populateScores(s *models.DailySummary, latest map[models.MetricType]*models.MetricRecord) {
	s.ReadinessScore = intValue(latest[models.MetricReadinessScore])
	s.StressScore = intValue(latest[models.MetricStressScore])
	// A dedicated sleep score metric wins over the session's own score.
	if v := intValue(latest[models.MetricSleepScore]); v != nil {
		s.SleepScore = v
	}
}

func intValue(m *models.MetricRecord) *int {
	if m == nil {
		return nil
	}
	return models.Int(int(m.Value))
}

func floatValue(m *models.MetricRecord) *float64 {
	if m == nil {
		return nil
	}
	return models.Float(m.Value)
}
