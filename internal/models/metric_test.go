// ABOUTME: Tests for MetricType, MetricRecord, and record constructors.
// ABOUTME: Validates units mapping, date derivation, and visitor dispatch.
package models

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

func TestMetricTypeUnit(t *testing.T) {
	tests := []struct {
		metricType MetricType
		wantUnit   string
	}{
		{MetricWeight, "kg"},
		{MetricHRVRMSSD, "ms"},
		{MetricSteps, "steps"},
		{MetricDistance, "km"},
		{MetricSpO2, "%"},
	}

	for _, tt := range tests {
		t.Run(string(tt.metricType), func(t *testing.T) {
			got := MetricUnits[tt.metricType]
			if got != tt.wantUnit {
				t.Errorf("MetricUnits[%s] = %s, want %s", tt.metricType, got, tt.wantUnit)
			}
		})
	}
}

func TestAllMetricTypesHaveUnits(t *testing.T) {
	for _, mt := range AllMetricTypes {
		if _, ok := MetricUnits[mt]; !ok {
			t.Errorf("metric type %s has no unit", mt)
		}
		if !IsValidMetricType(string(mt)) {
			t.Errorf("IsValidMetricType(%s) = false", mt)
		}
	}
	if IsValidMetricType("mood") {
		t.Error("IsValidMetricType(mood) = true, want false")
	}
}

func TestCalendarDate(t *testing.T) {
	ts := time.Date(2024, 8, 24, 23, 50, 0, 0, time.UTC)

	p := NewMetricPoint(SourceFitbit, MetricSteps, 10, ts)
	if got := p.CalendarDate(); got != (civil.Date{Year: 2024, Month: 8, Day: 24}) {
		t.Errorf("derived date = %s, want 2024-08-24", got)
	}

	p.WithDate(civil.Date{Year: 2024, Month: 8, Day: 25})
	if got := p.CalendarDate(); got.String() != "2024-08-25" {
		t.Errorf("explicit date = %s, want 2024-08-25", got)
	}
}

func TestNewMetricRecord(t *testing.T) {
	batch := uuid.New()
	ts := time.Date(2024, 8, 25, 0, 0, 0, 0, time.UTC)
	p := NewMetricPoint(SourceFitbit, MetricSteps, 8123, ts).
		WithMetadata(map[string]any{"aggregation": "daily_total"})

	m := NewMetricRecord("local", batch, p)
	if m.ID == "" {
		t.Error("expected ID to be set")
	}
	if m.UserID != "local" || m.BatchID != batch {
		t.Errorf("identity = %s/%s, want local/%s", m.UserID, m.BatchID, batch)
	}
	if m.Unit != "steps" {
		t.Errorf("Unit = %s, want steps", m.Unit)
	}
	if m.Date.String() != "2024-08-25" {
		t.Errorf("Date = %s, want 2024-08-25", m.Date)
	}
	if m.MetadataString("aggregation") != "daily_total" {
		t.Errorf("metadata aggregation = %q", m.MetadataString("aggregation"))
	}
}

type kindCounter struct{ metric, sleep, nutrition int }

func (k *kindCounter) VisitMetric(*MetricPoint) error        { k.metric++; return nil }
func (k *kindCounter) VisitSleep(*SleepRecord) error         { k.sleep++; return nil }
func (k *kindCounter) VisitNutrition(*NutritionRecord) error { k.nutrition++; return nil }

func TestRecordVisitor(t *testing.T) {
	now := time.Now()
	records := []Record{
		NewMetricPoint(SourceFitbit, MetricSteps, 1, now),
		&SleepRecord{RecordBase: RecordBase{Source: SourceFitbit, Timestamp: now}},
		&NutritionRecord{RecordBase: RecordBase{Source: SourceCronometer, Timestamp: now}},
		NewMetricPoint(SourceFitbit, MetricDistance, 1, now),
	}

	var k kindCounter
	for _, r := range records {
		if err := r.Accept(&k); err != nil {
			t.Fatalf("Accept failed: %v", err)
		}
	}
	if k.metric != 2 || k.sleep != 1 || k.nutrition != 1 {
		t.Errorf("counts = %+v, want 2/1/1", k)
	}
	if records[1].Kind() != KindSleepSession {
		t.Errorf("Kind = %s, want sleep_session", records[1].Kind())
	}
}

func TestNewSleepSessionFallsBackToStart(t *testing.T) {
	start := time.Date(2024, 8, 24, 23, 50, 0, 0, time.UTC)
	r := &SleepRecord{
		RecordBase: RecordBase{Source: SourceAppleHealth, Timestamp: start, Date: civil.Date{Year: 2024, Month: 8, Day: 25}},
		Start:      start,
		End:        start.Add(380 * time.Minute),
	}

	s := NewSleepSession("local", uuid.New(), r)
	if s.SourceLogID != "2024-08-24T23:50:00Z" {
		t.Errorf("SourceLogID = %s", s.SourceLogID)
	}
	if s.DateOfSleep.String() != "2024-08-25" {
		t.Errorf("DateOfSleep = %s, want 2024-08-25", s.DateOfSleep)
	}
}
