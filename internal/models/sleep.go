// ABOUTME: Persisted sleep session entity.
// ABOUTME: Keyed by the source-native log id and labeled with the source's night.
package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// SleepSession is a persisted sleep record.
// Unique on (UserID, Source, SourceLogID).
type SleepSession struct {
	ID              string         `json:"id" yaml:"id"`
	UserID          string         `json:"user_id" yaml:"user_id"`
	Source          Source         `json:"source" yaml:"source"`
	SourceLogID     string         `json:"source_log_id" yaml:"source_log_id"`
	DateOfSleep     civil.Date     `json:"date_of_sleep" yaml:"date_of_sleep"`
	StartTime       time.Time      `json:"start_time" yaml:"start_time"`
	EndTime         time.Time      `json:"end_time" yaml:"end_time"`
	DurationMinutes int            `json:"duration_minutes" yaml:"duration_minutes"`
	MinutesAsleep   *int           `json:"minutes_asleep,omitempty" yaml:"minutes_asleep,omitempty"`
	MinutesAwake    *int           `json:"minutes_awake,omitempty" yaml:"minutes_awake,omitempty"`
	DeepMinutes     *int           `json:"deep_sleep_minutes,omitempty" yaml:"deep_sleep_minutes,omitempty"`
	LightMinutes    *int           `json:"light_sleep_minutes,omitempty" yaml:"light_sleep_minutes,omitempty"`
	REMMinutes      *int           `json:"rem_sleep_minutes,omitempty" yaml:"rem_sleep_minutes,omitempty"`
	Efficiency      *int           `json:"efficiency,omitempty" yaml:"efficiency,omitempty"`
	SleepScore      *int           `json:"sleep_score,omitempty" yaml:"sleep_score,omitempty"`
	Stages          []SleepStage   `json:"stages_data,omitempty" yaml:"stages_data,omitempty"`
	RawPayload      map[string]any `json:"raw_payload,omitempty" yaml:"raw_payload,omitempty"`
	BatchID         uuid.UUID      `json:"import_batch_id" yaml:"import_batch_id"`
	CreatedAt       time.Time      `json:"created_at" yaml:"created_at"`
}

// NewSleepSession builds a persisted row from a parsed sleep record.
// Sessions without a source log id fall back to their start instant.
func NewSleepSession(userID string, batchID uuid.UUID, r *SleepRecord) *SleepSession {
	logID := r.Detail.SourceLogID
	if logID == "" {
		logID = r.Start.UTC().Format(time.RFC3339)
	}
	return &SleepSession{
		ID:              NewID(),
		UserID:          userID,
		Source:          r.Source,
		SourceLogID:     logID,
		DateOfSleep:     r.CalendarDate(),
		StartTime:       r.Start.UTC(),
		EndTime:         r.End.UTC(),
		DurationMinutes: r.DurationMinutes,
		MinutesAsleep:   r.Detail.MinutesAsleep,
		MinutesAwake:    r.Detail.MinutesAwake,
		DeepMinutes:     r.Detail.DeepMinutes,
		LightMinutes:    r.Detail.LightMinutes,
		REMMinutes:      r.Detail.REMMinutes,
		Efficiency:      r.Detail.Efficiency,
		SleepScore:      r.Detail.SleepScore,
		Stages:          r.Detail.Stages,
		RawPayload:      r.RawPayload,
		BatchID:         batchID,
		CreatedAt:       time.Now().UTC(),
	}
}
