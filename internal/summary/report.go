// ABOUTME: Rolling averages and weekly reports over stored daily summaries.
// ABOUTME: Means skip days where a field is unknown.
package summary

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
	"gonum.org/v1/gonum/stat"
)

// Averages holds per-field means over a window. Nil means no day in the
// window had the field.
type Averages struct {
	From       civil.Date `json:"from"`
	To         civil.Date `json:"to"`
	Days       int        `json:"days_with_data"`
	Calories   *float64   `json:"avg_calories"`
	ProteinG   *float64   `json:"avg_protein_g"`
	Steps      *float64   `json:"avg_steps"`
	SleepMin   *float64   `json:"avg_sleep_min"`
	DeepSleep  *float64   `json:"avg_deep_sleep_min"`
	REMSleep   *float64   `json:"avg_rem_sleep_min"`
	RestingHR  *float64   `json:"avg_resting_hr"`
	HRV        *float64   `json:"avg_hrv"`
	SleepScore *float64   `json:"avg_sleep_score"`
	Readiness  *float64   `json:"avg_readiness"`
}

// WeeklyReport summarizes seven days starting at Start.
type WeeklyReport struct {
	Start    civil.Date `json:"week_start"`
	End      civil.Date `json:"week_end"`
	Averages *Averages  `json:"averages"`
	Totals   Totals     `json:"totals"`
	Bests    Bests      `json:"bests"`
}

// Totals sums activity over a report window.
type Totals struct {
	Steps             int `json:"total_steps"`
	ActiveZoneMinutes int `json:"total_active_zone_minutes"`
}

// Bests holds the best single day for a few headline fields.
type Bests struct {
	SleepScore *int     `json:"best_sleep_score"`
	HRV        *float64 `json:"highest_hrv"`
	Steps      *int     `json:"most_steps"`
}

// Averages computes means over the summaries stored between from and to.
func (b *Builder) Averages(ctx context.Context, userID string, from, to civil.Date) (*Averages, error) {
	summaries, err := b.store.ListSummaries(ctx, storage.Filter{UserID: userID, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return averages(summaries, from, to), nil
}

// WeeklyReport builds the report for the seven days starting at start.
func (b *Builder) WeeklyReport(ctx context.Context, userID string, start civil.Date) (*WeeklyReport, error) {
	end := start.AddDays(6)
	summaries, err := b.store.ListSummaries(ctx, storage.Filter{UserID: userID, From: start, To: end})
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	r := &WeeklyReport{Start: start, End: end, Averages: averages(summaries, start, end)}
	for _, s := range summaries {
		if s.Steps != nil {
			r.Totals.Steps += *s.Steps
			if r.Bests.Steps == nil || *s.Steps > *r.Bests.Steps {
				r.Bests.Steps = s.Steps
			}
		}
		if s.ActiveZoneMinutes != nil {
			r.Totals.ActiveZoneMinutes += *s.ActiveZoneMinutes
		}
		if s.SleepScore != nil && (r.Bests.SleepScore == nil || *s.SleepScore > *r.Bests.SleepScore) {
			r.Bests.SleepScore = s.SleepScore
		}
		if s.HRVRMSSD != nil && (r.Bests.HRV == nil || *s.HRVRMSSD > *r.Bests.HRV) {
			r.Bests.HRV = s.HRVRMSSD
		}
	}
	return r, nil
}

// MondayOf returns the Monday on or before d.
func MondayOf(d civil.Date) civil.Date {
	wd := int(d.In(time.UTC).Weekday())
	return d.AddDays(-((wd + 6) % 7))
}

func averages(summaries []*models.DailySummary, from, to civil.Date) *Averages {
	a := &Averages{From: from, To: to, Days: len(summaries)}
	a.Calories = mean(summaries, func(s *models.DailySummary) *float64 { return s.Calories })
	a.ProteinG = mean(summaries, func(s *models.DailySummary) *float64 { return s.ProteinG })
	a.Steps = mean(summaries, func(s *models.DailySummary) *float64 { return asFloat(s.Steps) })
	a.SleepMin = mean(summaries, func(s *models.DailySummary) *float64 { return asFloat(s.SleepDurationMin) })
	a.DeepSleep = mean(summaries, func(s *models.DailySummary) *float64 { return asFloat(s.DeepSleepMin) })
	a.REMSleep = mean(summaries, func(s *models.DailySummary) *float64 { return asFloat(s.REMSleepMin) })
	a.RestingHR = mean(summaries, func(s *models.DailySummary) *float64 { return asFloat(s.RestingHR) })
	a.HRV = mean(summaries, func(s *models.DailySummary) *float64 { return s.HRVRMSSD })
	a.SleepScore = mean(summaries, func(s *models.DailySummary) *float64 { return asFloat(s.SleepScore) })
	a.Readiness = mean(summaries, func(s *models.DailySummary) *float64 { return asFloat(s.ReadinessScore) })
	return a
}

func mean(summaries []*models.DailySummary, field func(*models.DailySummary) *float64) *float64 {
	var xs []float64
	for _, s := range summaries {
		if v := field(s); v != nil {
			xs = append(xs, *v)
		}
	}
	if len(xs) == 0 {
		return nil
	}
	return models.Float(stat.Mean(xs, nil))
}

func asFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(float64(*v))
}
