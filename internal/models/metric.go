// ABOUTME: MetricType enum and the persisted MetricRecord for normalized health data.
// ABOUTME: Covers activity, vitals, scores, and body composition metrics with default units.
package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// MetricType represents the type of health metric being recorded.
type MetricType string

const (
	// Activity
	MetricSteps                   MetricType = "steps"
	MetricDistance                MetricType = "distance"
	MetricCaloriesBurned          MetricType = "calories_burned"
	MetricActiveZoneMinutes       MetricType = "active_zone_minutes"
	MetricVeryActiveMinutes       MetricType = "very_active_minutes"
	MetricModeratelyActiveMinutes MetricType = "moderately_active_minutes"
	MetricLightlyActiveMinutes    MetricType = "lightly_active_minutes"
	MetricSedentaryMinutes        MetricType = "sedentary_minutes"

	// Vitals
	MetricHeartRate        MetricType = "heart_rate"
	MetricRestingHeartRate MetricType = "resting_heart_rate"
	MetricHRVRMSSD         MetricType = "hrv_rmssd"
	MetricHRVSDNN          MetricType = "hrv_sdnn"
	MetricSpO2             MetricType = "spo2"
	MetricSkinTemperature  MetricType = "skin_temperature"
	MetricRespiratoryRate  MetricType = "respiratory_rate"

	// Body
	MetricWeight  MetricType = "weight"
	MetricBodyFat MetricType = "body_fat"

	// Scores
	MetricSleepScore     MetricType = "sleep_score"
	MetricStressScore    MetricType = "stress_score"
	MetricReadinessScore MetricType = "readiness_score"
)

// MetricUnits maps metric types to their default units.
var MetricUnits = map[MetricType]string{
	MetricSteps:                   "steps",
	MetricDistance:                "km",
	MetricCaloriesBurned:          "kcal",
	MetricActiveZoneMinutes:       "minutes",
	MetricVeryActiveMinutes:       "minutes",
	MetricModeratelyActiveMinutes: "minutes",
	MetricLightlyActiveMinutes:    "minutes",
	MetricSedentaryMinutes:        "minutes",
	MetricHeartRate:               "bpm",
	MetricRestingHeartRate:        "bpm",
	MetricHRVRMSSD:                "ms",
	MetricHRVSDNN:                 "ms",
	MetricSpO2:                    "%",
	MetricSkinTemperature:         "°C",
	MetricRespiratoryRate:         "breaths/min",
	MetricWeight:                  "kg",
	MetricBodyFat:                 "%",
	MetricSleepScore:              "score",
	MetricStressScore:             "score",
	MetricReadinessScore:          "score",
}

// AllMetricTypes returns all valid metric types.
var AllMetricTypes = []MetricType{
	MetricSteps, MetricDistance, MetricCaloriesBurned, MetricActiveZoneMinutes,
	MetricVeryActiveMinutes, MetricModeratelyActiveMinutes, MetricLightlyActiveMinutes, MetricSedentaryMinutes,
	MetricHeartRate, MetricRestingHeartRate, MetricHRVRMSSD, MetricHRVSDNN,
	MetricSpO2, MetricSkinTemperature, MetricRespiratoryRate,
	MetricWeight, MetricBodyFat,
	MetricSleepScore, MetricStressScore, MetricReadinessScore,
}

// IsValidMetricType checks if a string is a valid metric type.
func IsValidMetricType(s string) bool {
	for _, mt := range AllMetricTypes {
		if string(mt) == s {
			return true
		}
	}
	return false
}

// MetricRecord is a persisted metric point.
// Unique on (UserID, Source, MetricType, Timestamp).
type MetricRecord struct {
	ID         string         `json:"id" yaml:"id"`
	UserID     string         `json:"user_id" yaml:"user_id"`
	Source     Source         `json:"source" yaml:"source"`
	MetricType MetricType     `json:"metric_type" yaml:"metric_type"`
	Value      float64        `json:"value" yaml:"value"`
	Unit       string         `json:"unit" yaml:"unit"`
	Timestamp  time.Time      `json:"timestamp" yaml:"timestamp"`
	Date       civil.Date     `json:"date" yaml:"date"`
	Metadata   map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	RawPayload map[string]any `json:"raw_payload,omitempty" yaml:"raw_payload,omitempty"`
	BatchID    uuid.UUID      `json:"import_batch_id" yaml:"import_batch_id"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// NewMetricRecord builds a persisted row from a parsed metric point.
func NewMetricRecord(userID string, batchID uuid.UUID, p *MetricPoint) *MetricRecord {
	return &MetricRecord{
		ID:         NewID(),
		UserID:     userID,
		Source:     p.Source,
		MetricType: p.MetricType,
		Value:      p.Value,
		Unit:       p.Unit,
		Timestamp:  p.Timestamp.UTC(),
		Date:       p.CalendarDate(),
		Metadata:   p.Metadata,
		RawPayload: p.RawPayload,
		BatchID:    batchID,
		CreatedAt:  time.Now().UTC(),
	}
}

// MetadataString returns a string metadata value, or "" when absent.
func (m *MetricRecord) MetadataString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	s, _ := m.Metadata[key].(string)
	return s
}

// MetadataFloat returns a numeric metadata value.
func (m *MetricRecord) MetadataFloat(key string) (float64, bool) {
	if m.Metadata == nil {
		return 0, false
	}
	switch v := m.Metadata[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
