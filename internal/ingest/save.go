// ABOUTME: Per-record save dispatch and the outcome fold for one ingestion call.
// ABOUTME: Each record yields an outcome value; Tally folds them without early exit.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
)

var errNoTimestamp = errors.New("record has no timestamp")

// outcome is the result of saving one record.
type outcome struct {
	created bool
	date    civil.Date
	err     error
}

// saver persists records through a storage.Tx by kind.
type saver struct {
	ctx     context.Context
	tx      storage.Tx
	user    string
	batchID uuid.UUID

	created bool
	date    civil.Date
}

var _ models.RecordVisitor = (*saver)(nil)

func (s *saver) save(rec models.Record) outcome {
	s.created, s.date = false, civil.Date{}
	if rec.Common().Timestamp.IsZero() {
		return outcome{err: fmt.Errorf("save %s: %w", rec.Kind(), errNoTimestamp)}
	}
	if err := rec.Accept(s); err != nil {
		return outcome{date: s.date, err: fmt.Errorf("save %s: %w", rec.Kind(), err)}
	}
	return outcome{created: s.created, date: s.date}
}

func (s *saver) VisitMetric(p *models.MetricPoint) error {
	m := models.NewMetricRecord(s.user, s.batchID, p)
	s.date = m.Date
	created, err := s.tx.GetOrCreateMetric(s.ctx, m)
	s.created = created
	return err
}

func (s *saver) VisitSleep(r *models.SleepRecord) error {
	sl := models.NewSleepSession(s.user, s.batchID, r)
	s.date = sl.DateOfSleep
	created, err := s.tx.GetOrCreateSleep(s.ctx, sl)
	s.created = created
	return err
}

func (s *saver) VisitNutrition(r *models.NutritionRecord) error {
	n := models.NewNutritionDay(s.user, s.batchID, r)
	s.date = n.Date
	created, err := s.tx.GetOrCreateNutrition(s.ctx, n)
	s.created = created
	return err
}

// Tally accumulates save outcomes. Duplicates and failures both count as
// skipped; only failures add an error string.
type Tally struct {
	Created int
	Skipped int
	Errors  []string
	dates   map[civil.Date]struct{}
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{Errors: []string{}, dates: make(map[civil.Date]struct{})}
}

// Add folds one outcome in.
func (t *Tally) Add(o outcome) {
	switch {
	case o.err != nil:
		t.Skipped++
		t.Errors = append(t.Errors, o.err.Error())
	case o.created:
		t.Created++
		t.dates[o.date] = struct{}{}
	default:
		t.Skipped++
	}
}

// Dates returns the dates touched by created records, oldest first.
func (t *Tally) Dates() []civil.Date {
	out := make([]civil.Date, 0, len(t.dates))
	for d := range t.dates {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b civil.Date) int {
		switch {
		case a.Before(b):
			return -1
		case a.After(b):
			return 1
		}
		return 0
	})
	return out
}
