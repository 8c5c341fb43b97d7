// ABOUTME: DailySummary denormalized rollup with macro percentages and completeness.
// ABOUTME: One row per user and date, recomputed in full on every rebuild.
package models

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Energy per gram of each macronutrient.
const (
	KcalPerGramProtein = 4
	KcalPerGramCarbs   = 4
	KcalPerGramFat     = 9
)

// completenessFields is the size of the key field checklist.
const completenessFields = 6

// DailySummary is the per-day projection across nutrition, sleep, activity,
// vitals, and scores. Unique on (UserID, Date).
type DailySummary struct {
	ID     uuid.UUID  `json:"id" yaml:"id"`
	UserID string     `json:"user_id" yaml:"user_id"`
	Date   civil.Date `json:"date" yaml:"date"`

	// Nutrition
	Calories *float64 `json:"calories" yaml:"calories"`
	ProteinG *float64 `json:"protein_g" yaml:"protein_g"`
	CarbsG   *float64 `json:"carbs_g" yaml:"carbs_g"`
	FatG     *float64 `json:"fat_g" yaml:"fat_g"`
	FiberG   *float64 `json:"fiber_g" yaml:"fiber_g"`
	SodiumMG *float64 `json:"sodium_mg" yaml:"sodium_mg"`

	// Sleep
	SleepDurationMin   *int        `json:"sleep_duration_min" yaml:"sleep_duration_min"`
	SleepMinutesAsleep *int        `json:"sleep_minutes_asleep" yaml:"sleep_minutes_asleep"`
	SleepMinutesAwake  *int        `json:"sleep_minutes_awake" yaml:"sleep_minutes_awake"`
	DeepSleepMin       *int        `json:"deep_sleep_min" yaml:"deep_sleep_min"`
	LightSleepMin      *int        `json:"light_sleep_min" yaml:"light_sleep_min"`
	REMSleepMin        *int        `json:"rem_sleep_min" yaml:"rem_sleep_min"`
	SleepEfficiency    *int        `json:"sleep_efficiency" yaml:"sleep_efficiency"`
	SleepScore         *int        `json:"sleep_score" yaml:"sleep_score"`
	SleepStartTime     *civil.Time `json:"sleep_start_time" yaml:"sleep_start_time"`
	SleepEndTime       *civil.Time `json:"sleep_end_time" yaml:"sleep_end_time"`

	// Activity
	Steps                   *int     `json:"steps" yaml:"steps"`
	DistanceKM              *float64 `json:"distance_km" yaml:"distance_km"`
	ActiveZoneMinutes       *int     `json:"active_zone_minutes" yaml:"active_zone_minutes"`
	VeryActiveMinutes       *int     `json:"very_active_minutes" yaml:"very_active_minutes"`
	ModeratelyActiveMinutes *int     `json:"moderately_active_minutes" yaml:"moderately_active_minutes"`
	LightlyActiveMinutes    *int     `json:"lightly_active_minutes" yaml:"lightly_active_minutes"`
	SedentaryMinutes        *int     `json:"sedentary_minutes" yaml:"sedentary_minutes"`

	// Vitals
	RestingHR         *int     `json:"resting_hr" yaml:"resting_hr"`
	HRVRMSSD          *float64 `json:"hrv_rmssd" yaml:"hrv_rmssd"`
	HRVDeepRMSSD      *float64 `json:"hrv_deep_rmssd" yaml:"hrv_deep_rmssd"`
	SpO2Avg           *float64 `json:"spo2_avg" yaml:"spo2_avg"`
	SpO2Min           *float64 `json:"spo2_min" yaml:"spo2_min"`
	SkinTempDeviation *float64 `json:"skin_temp_deviation" yaml:"skin_temp_deviation"`

	// Scores
	ReadinessScore *int `json:"readiness_score" yaml:"readiness_score"`
	StressScore    *int `json:"stress_score" yaml:"stress_score"`

	// Derived
	ProteinPct       *float64 `json:"protein_pct" yaml:"protein_pct"`
	CarbsPct         *float64 `json:"carbs_pct" yaml:"carbs_pct"`
	FatPct           *float64 `json:"fat_pct" yaml:"fat_pct"`
	DataCompleteness int      `json:"data_completeness" yaml:"data_completeness"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewDailySummary creates an empty summary for a user and date.
func NewDailySummary(userID string, date civil.Date) *DailySummary {
	now := time.Now().UTC()
	return &DailySummary{
		ID:        uuid.New(),
		UserID:    userID,
		Date:      date,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Reset clears every data field while keeping identity and creation time.
func (s *DailySummary) Reset() {
	*s = DailySummary{
		ID:        s.ID,
		UserID:    s.UserID,
		Date:      s.Date,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// SameData reports whether s and o hold the same values, ignoring the
// CreatedAt and UpdatedAt bookkeeping timestamps.
func (s *DailySummary) SameData(o *DailySummary) bool {
	a, b := *s, *o
	a.CreatedAt, a.UpdatedAt = time.Time{}, time.Time{}
	b.CreatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// ComputeDerived fills macro percentages and the completeness score.
func (s *DailySummary) ComputeDerived() {
	s.ProteinPct, s.CarbsPct, s.FatPct = nil, nil, nil
	if s.Calories != nil && *s.Calories > 0 {
		s.ProteinPct = macroPct(s.ProteinG, KcalPerGramProtein, *s.Calories)
		s.CarbsPct = macroPct(s.CarbsG, KcalPerGramCarbs, *s.Calories)
		s.FatPct = macroPct(s.FatG, KcalPerGramFat, *s.Calories)
	}

	filled := 0
	if s.Calories != nil {
		filled++
	}
	if s.Steps != nil {
		filled++
	}
	if s.SleepDurationMin != nil {
		filled++
	}
	if s.RestingHR != nil {
		filled++
	}
	if s.HRVRMSSD != nil {
		filled++
	}
	if s.SleepScore != nil {
		filled++
	}
	s.DataCompleteness = filled * 100 / completenessFields
}

func macroPct(grams *float64, kcalPerGram, calories float64) *float64 {
	if grams == nil {
		return nil
	}
	pct := math.Round(*grams*kcalPerGram/calories*100*10) / 10
	return &pct
}
