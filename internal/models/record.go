// ABOUTME: Normalized record kinds produced by every adapter.
// ABOUTME: Record is sealed; RecordVisitor forces callers to handle each kind.
package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// RecordKind tags the shape of a normalized record.
type RecordKind string

const (
	KindMetricPoint  RecordKind = "metric_point"
	KindSleepSession RecordKind = "sleep_session"
	KindNutritionDay RecordKind = "nutrition_day"
)

// Record is the common adapter output. The only implementations are
// *MetricPoint, *SleepRecord and *NutritionRecord.
type Record interface {
	Kind() RecordKind
	Common() *RecordBase
	Accept(v RecordVisitor) error
	sealed()
}

// RecordVisitor dispatches on record kind. Adding a kind adds a method here,
// so every consumer stops compiling until it handles the new kind.
type RecordVisitor interface {
	VisitMetric(*MetricPoint) error
	VisitSleep(*SleepRecord) error
	VisitNutrition(*NutritionRecord) error
}

// RecordBase holds the fields shared by all record kinds.
type RecordBase struct {
	Source     Source         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	Date       civil.Date     `json:"date"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RawPayload map[string]any `json:"raw_payload,omitempty"`
}

// Common returns the shared fields.
func (b *RecordBase) Common() *RecordBase { return b }

// CalendarDate returns the explicit date, or the timestamp's UTC date when unset.
func (b *RecordBase) CalendarDate() civil.Date {
	if b.Date.IsValid() {
		return b.Date
	}
	return civil.DateOf(b.Timestamp.UTC())
}

// MetricPoint is a single metric value.
type MetricPoint struct {
	RecordBase
	MetricType MetricType `json:"metric_type"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit"`
}

// NewMetricPoint creates a metric point with the metric's default unit.
func NewMetricPoint(source Source, metricType MetricType, value float64, ts time.Time) *MetricPoint {
	return &MetricPoint{
		RecordBase: RecordBase{Source: source, Timestamp: ts},
		MetricType: metricType,
		Value:      value,
		Unit:       MetricUnits[metricType],
	}
}

// WithDate sets an explicit calendar date.
func (p *MetricPoint) WithDate(d civil.Date) *MetricPoint {
	p.Date = d
	return p
}

// WithUnit overrides the default unit.
func (p *MetricPoint) WithUnit(unit string) *MetricPoint {
	p.Unit = unit
	return p
}

// WithMetadata sets source-specific context.
func (p *MetricPoint) WithMetadata(md map[string]any) *MetricPoint {
	p.Metadata = md
	return p
}

// WithRaw keeps the original payload for audit.
func (p *MetricPoint) WithRaw(raw map[string]any) *MetricPoint {
	p.RawPayload = raw
	return p
}

func (p *MetricPoint) Kind() RecordKind             { return KindMetricPoint }
func (p *MetricPoint) Accept(v RecordVisitor) error { return v.VisitMetric(p) }
func (p *MetricPoint) sealed()                      {}

// SleepStage is one epoch of a staged sleep session.
type SleepStage struct {
	DateTime string `json:"dateTime"`
	Level    string `json:"level"`
	Seconds  int    `json:"seconds"`
}

// SleepDetail carries the per-session breakdown. Nil pointers mean the
// source did not report the value.
type SleepDetail struct {
	SourceLogID   string       `json:"source_log_id"`
	MinutesAsleep *int         `json:"minutes_asleep,omitempty"`
	MinutesAwake  *int         `json:"minutes_awake,omitempty"`
	Efficiency    *int         `json:"efficiency,omitempty"`
	DeepMinutes   *int         `json:"deep_sleep_minutes,omitempty"`
	LightMinutes  *int         `json:"light_sleep_minutes,omitempty"`
	REMMinutes    *int         `json:"rem_sleep_minutes,omitempty"`
	SleepScore    *int         `json:"sleep_score,omitempty"`
	Stages        []SleepStage `json:"stages_data,omitempty"`
}

// SleepRecord is one sleep session. Date is the source's labeled night,
// which may differ from both Start and End.
type SleepRecord struct {
	RecordBase
	Start           time.Time   `json:"start_time"`
	End             time.Time   `json:"end_time"`
	DurationMinutes int         `json:"duration_minutes"`
	Detail          SleepDetail `json:"sleep_detail"`
}

func (s *SleepRecord) Kind() RecordKind             { return KindSleepSession }
func (s *SleepRecord) Accept(v RecordVisitor) error { return v.VisitSleep(s) }
func (s *SleepRecord) sealed()                      {}

// NutritionDetail holds daily nutrition totals.
type NutritionDetail struct {
	Calories       *float64           `json:"calories,omitempty"`
	ProteinG       *float64           `json:"protein_g,omitempty"`
	CarbsG         *float64           `json:"carbs_g,omitempty"`
	FatG           *float64           `json:"fat_g,omitempty"`
	FiberG         *float64           `json:"fiber_g,omitempty"`
	SugarG         *float64           `json:"sugar_g,omitempty"`
	SodiumMG       *float64           `json:"sodium_mg,omitempty"`
	WaterML        *float64           `json:"water_ml,omitempty"`
	Micronutrients map[string]float64 `json:"micronutrients,omitempty"`
	MealEntries    int                `json:"meal_entries,omitempty"`
}

// NutritionRecord is one day of nutrition totals from one source.
type NutritionRecord struct {
	RecordBase
	Detail NutritionDetail `json:"nutrition_detail"`
}

func (n *NutritionRecord) Kind() RecordKind             { return KindNutritionDay }
func (n *NutritionRecord) Accept(v RecordVisitor) error { return v.VisitNutrition(n) }
func (n *NutritionRecord) sealed()                      {}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
