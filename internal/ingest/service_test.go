// ABOUTME: Tests for the ingestion orchestrator against a temporary SQLite store.
// ABOUTME: Covers idempotent re-ingestion, failure paths, error capping, and dry runs.
package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/adapter"
	"github.com/harperreed/vitals/internal/lock"
	"github.com/harperreed/vitals/internal/models"
	"github.com/harperreed/vitals/internal/storage"
	"github.com/harperreed/vitals/internal/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "tester"

var quiet = log.New(io.Discard)

// fakeAdapter returns a fixed parse result.
type fakeAdapter struct {
	records []models.Record
	errors  []string
}

func (f *fakeAdapter) Name() models.Source { return models.SourceManual }
func (f *fakeAdapter) Detect(string) bool  { return true }
func (f *fakeAdapter) Parse(path string) *adapter.ParseResult {
	return &adapter.ParseResult{
		Success:       len(f.errors) == 0,
		Records:       f.records,
		Errors:        f.errors,
		RecordsParsed: len(f.records),
		FilePath:      path,
	}
}

func newService(t *testing.T, opts Options) (*Service, storage.Store) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "vitals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if opts.UserID == "" {
		opts.UserID = testUser
	}
	opts.Logger = quiet
	registry := adapter.DefaultRegistry(adapter.Options{Logger: quiet})
	return NewService(db, registry, summary.NewBuilder(db, quiet), opts), db
}

func writeCronometer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := "Date,Energy (kcal),Protein (g),Carbs (g),Fat (g)\n" +
		"2024-03-10,2000,150,200,60\n" +
		"2024-03-11,1800,120,180,55\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dailysummary.csv"), []byte(content), 0600))
	return dir
}

func TestIngestIsIdempotent(t *testing.T) {
	svc, db := newService(t, Options{})
	ctx := context.Background()
	dir := writeCronometer(t)

	first, err := svc.Ingest(ctx, dir, "")
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, first.Status)
	assert.Equal(t, string(models.SourceCronometer), first.Source)
	assert.Equal(t, "directory", first.FileType)
	assert.Equal(t, 2, first.RecordsProcessed)
	assert.Equal(t, 2, first.RecordsCreated)
	assert.Equal(t, 0, first.RecordsSkipped)
	assert.NotNil(t, first.CompletedAt)

	second, err := svc.Ingest(ctx, dir, "cronometer")
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, second.Status)
	assert.Equal(t, 0, second.RecordsCreated)
	assert.Equal(t, 2, second.RecordsSkipped)
	assert.Empty(t, second.Errors)

	days, err := db.ListNutrition(ctx, storage.Filter{UserID: testUser})
	require.NoError(t, err)
	assert.Len(t, days, 2)

	ds, err := db.GetSummary(ctx, testUser, civil.Date{Year: 2024, Month: 3, Day: 10})
	require.NoError(t, err)
	assert.Equal(t, 2000.0, *ds.Calories)
	assert.Equal(t, 30.0, *ds.ProteinPct)

	stored, err := db.GetBatch(ctx, first.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, stored.Status)
	assert.Equal(t, 2, stored.RecordsCreated)
}

func TestIngestWithoutAdapterFails(t *testing.T) {
	svc, db := newService(t, Options{})
	ctx := context.Background()

	batch, err := svc.Ingest(ctx, t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, batch.Status)
	assert.Equal(t, "unknown", batch.Source)
	require.Len(t, batch.Errors, 1)
	assert.Contains(t, batch.Errors[0], "no adapter found")
	assert.Zero(t, batch.RecordsProcessed)

	batch, err = svc.Ingest(ctx, t.TempDir(), "garmin")
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, batch.Status)

	stored, err := db.GetBatch(ctx, batch.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestIngestIsolatesBadRecords(t *testing.T) {
	svc, db := newService(t, Options{})
	ctx := context.Background()
	ts := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	fake := &fakeAdapter{
		records: []models.Record{
			models.NewMetricPoint(models.SourceManual, models.MetricSteps, 9000, ts),
			models.NewMetricPoint(models.SourceManual, models.MetricWeight, 80, time.Time{}),
			models.NewMetricPoint(models.SourceManual, models.MetricSteps, 9000, ts),
		},
		errors: []string{"steps.json entry 3: bad value"},
	}

	batch, err := svc.IngestWithAdapter(ctx, fake, "/exports/manual.json")
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, batch.Status, "record failures never fail the batch")
	assert.Equal(t, 3, batch.RecordsProcessed)
	assert.Equal(t, 1, batch.RecordsCreated)
	assert.Equal(t, 2, batch.RecordsSkipped)
	require.Len(t, batch.Errors, 2)
	assert.Equal(t, "steps.json entry 3: bad value", batch.Errors[0])
	assert.Contains(t, batch.Errors[1], "no timestamp")

	metrics, err := db.ListMetrics(ctx, storage.Filter{UserID: testUser})
	require.NoError(t, err)
	assert.Len(t, metrics, 1)
	assert.Equal(t, batch.BatchID, metrics[0].BatchID)
}

func TestIngestCapsStoredErrors(t *testing.T) {
	svc, _ := newService(t, Options{MaxStoredErrors: 3})
	fake := &fakeAdapter{errors: []string{"e1", "e2", "e3", "e4", "e5"}}

	batch, err := svc.IngestWithAdapter(context.Background(), fake, "x.json")
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, batch.Status)
	assert.Equal(t, []string{"e1", "e2", "e3"}, batch.Errors)
}

func TestIngestWithAdapterReusesBatchID(t *testing.T) {
	svc, db := newService(t, Options{})
	id := uuid.New()
	a := adapter.NewCronometer(id, adapter.Options{Logger: quiet})

	batch, err := svc.IngestWithAdapter(context.Background(), a, writeCronometer(t))
	require.NoError(t, err)
	assert.Equal(t, id, batch.BatchID)

	days, err := db.ListNutrition(context.Background(), storage.Filter{UserID: testUser})
	require.NoError(t, err)
	for _, d := range days {
		assert.Equal(t, id, d.BatchID)
	}
}

func TestIngestFailsWhenUserLockIsHeld(t *testing.T) {
	locker := lock.NewLocal()
	svc, _ := newService(t, Options{Locker: locker, LockTimeout: 50 * time.Millisecond})

	unlock, err := locker.Lock(context.Background(), testUser)
	require.NoError(t, err)
	defer unlock()

	batch, err := svc.Ingest(context.Background(), writeCronometer(t), "")
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, batch.Status)
	require.Len(t, batch.Errors, 1)
	assert.Contains(t, batch.Errors[0], lock.ErrLockTimeout.Error())
}

func TestDryRunDoesNotPersist(t *testing.T) {
	svc, db := newService(t, Options{})
	dir := writeCronometer(t)

	report, err := svc.DryRun(dir, "")
	require.NoError(t, err)
	assert.Equal(t, models.SourceCronometer, report.Source)
	assert.Equal(t, 2, report.RecordsParsed)
	assert.Equal(t, 2, report.ByKind[models.KindNutritionDay])
	assert.Empty(t, report.ByMetric)

	batches, err := db.ListBatches(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, batches)

	_, err = svc.DryRun(t.TempDir(), "")
	assert.ErrorIs(t, err, adapter.ErrNoAdapter)
}

func TestTallyDatesSorted(t *testing.T) {
	tl := NewTally()
	d1 := civil.Date{Year: 2024, Month: 3, Day: 10}
	d2 := civil.Date{Year: 2024, Month: 3, Day: 9}
	tl.Add(outcome{created: true, date: d1})
	tl.Add(outcome{created: true, date: d2})
	tl.Add(outcome{created: true, date: d1})
	tl.Add(outcome{date: d1})

	assert.Equal(t, []civil.Date{d2, d1}, tl.Dates())
	assert.Equal(t, 3, tl.Created)
	assert.Equal(t, 1, tl.Skipped)
	assert.Empty(t, tl.Errors)
}
