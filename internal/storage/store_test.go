// ABOUTME: Backend conformance tests for the Store contract.
// ABOUTME: Covers natural-key idempotence, filtering, batches, summaries, and statistics.
package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		user := testUser()
		m := newMetric(user, models.SourceFitbit, models.MetricSteps, 9000, at(day1, 0))
		m.Metadata = map[string]any{"aggregation": "daily_sum"}
		sl := newSleep(user, "123", day1, at(day1, 0), 420)
		n := newNutrition(user, models.SourceCronometer, day1, 2100)

		assert.Equal(t, 3, save(t, s, user, m, sl, n))

		// Same natural keys with fresh row ids and different values.
		m2 := newMetric(user, models.SourceFitbit, models.MetricSteps, 1, at(day1, 0))
		sl2 := newSleep(user, "123", day1, at(day1, 1), 10)
		n2 := newNutrition(user, models.SourceCronometer, day1, 5)
		assert.Equal(t, 0, save(t, s, user, m2, sl2, n2))

		metrics, err := s.ListMetrics(context.Background(), Filter{UserID: user})
		require.NoError(t, err)
		require.Len(t, metrics, 1)
		assert.Equal(t, 9000.0, metrics[0].Value)
		assert.Equal(t, "daily_sum", metrics[0].MetadataString("aggregation"))
		assert.True(t, metrics[0].Timestamp.Equal(at(day1, 0)))
		assert.Equal(t, day1, metrics[0].Date)

		sessions, err := s.ListSleep(context.Background(), Filter{UserID: user})
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, 420, sessions[0].DurationMinutes)
		require.NotNil(t, sessions[0].MinutesAsleep)
		assert.Equal(t, 390, *sessions[0].MinutesAsleep)
		assert.Nil(t, sessions[0].REMMinutes)
		assert.Len(t, sessions[0].Stages, 1)

		days, err := s.ListNutrition(context.Background(), Filter{UserID: user})
		require.NoError(t, err)
		require.Len(t, days, 1)
		assert.Equal(t, 2100.0, *days[0].Calories)
		assert.Nil(t, days[0].FatG)
		assert.Equal(t, 90.0, days[0].Micronutrients["vitamin_c_mg"])
	})
}

func TestDistinctSourcesDoNotCollide(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		user := testUser()
		created := save(t, s, user,
			newMetric(user, models.SourceFitbit, models.MetricRestingHeartRate, 55, at(day1, 0)),
			newMetric(user, models.SourceAppleHealth, models.MetricRestingHeartRate, 57, at(day1, 0)),
			newMetric(testUser(), models.SourceFitbit, models.MetricRestingHeartRate, 60, at(day1, 0)),
		)
		assert.Equal(t, 3, created)
	})
}

func TestListMetricsFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := testUser()
		day2 := day1.AddDays(1)
		day3 := day1.AddDays(2)
		save(t, s, user,
			newMetric(user, models.SourceFitbit, models.MetricSteps, 1000, at(day1, 0)),
			newMetric(user, models.SourceFitbit, models.MetricSteps, 2000, at(day2, 0)),
			newMetric(user, models.SourceFitbit, models.MetricSteps, 3000, at(day3, 0)),
			newMetric(user, models.SourceAppleHealth, models.MetricSteps, 2500, at(day2, 0)),
			newMetric(user, models.SourceFitbit, models.MetricRestingHeartRate, 55, at(day2, 0)),
		)

		all, err := s.ListMetrics(ctx, Filter{UserID: user, MetricType: models.MetricSteps})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, 3000.0, all[0].Value, "most recent first")

		bySource, err := s.ListMetrics(ctx, Filter{UserID: user, Source: models.SourceAppleHealth})
		require.NoError(t, err)
		require.Len(t, bySource, 1)
		assert.Equal(t, 2500.0, bySource[0].Value)

		onDay, err := s.ListMetrics(ctx, Filter{UserID: user}.OnDate(day2))
		require.NoError(t, err)
		assert.Len(t, onDay, 3)

		window, err := s.ListMetrics(ctx, Filter{UserID: user, MetricType: models.MetricSteps, From: day2})
		require.NoError(t, err)
		assert.Len(t, window, 3)

		limited, err := s.ListMetrics(ctx, Filter{UserID: user, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}

func TestWithTxRollsBackOnError(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := testUser()
		boom := errors.New("boom")

		err := s.WithTx(ctx, user, func(tx Tx) error {
			_, err := tx.GetOrCreateMetric(ctx, newMetric(user, models.SourceFitbit, models.MetricSteps, 1, at(day1, 0)))
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		metrics, err := s.ListMetrics(ctx, Filter{UserID: user})
		require.NoError(t, err)
		assert.Empty(t, metrics)
	})
}

func TestBatchLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := testUser()

		b := models.NewImportBatch(user, "fitbit", "takeout.zip", "zip")
		require.NoError(t, s.CreateBatch(ctx, b))
		require.NoError(t, b.Transition(models.BatchProcessing))
		b.RecordsProcessed, b.RecordsCreated, b.RecordsSkipped = 10, 8, 2
		require.NoError(t, b.Finish(models.BatchCompleted, []string{"row 3: bad"}, 100))
		require.NoError(t, s.UpdateBatch(ctx, b))

		got, err := s.GetBatch(ctx, b.BatchID)
		require.NoError(t, err)
		assert.Equal(t, models.BatchCompleted, got.Status)
		assert.Equal(t, 8, got.RecordsCreated)
		assert.Equal(t, []string{"row 3: bad"}, got.Errors)
		require.NotNil(t, got.CompletedAt)

		older := models.NewImportBatch(user, "apple_health", "export.json", "json")
		older.StartedAt = b.StartedAt.Add(-time.Second)
		require.NoError(t, s.CreateBatch(ctx, older))

		batches, err := s.ListBatches(ctx, user, 0)
		require.NoError(t, err)
		require.Len(t, batches, 2)
		assert.Equal(t, b.BatchID, batches[0].BatchID)

		_, err = s.GetBatch(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.UpdateBatch(ctx, models.NewImportBatch(user, "x", "y", "z")), ErrNotFound)
	})
}

func TestSummaryUpsert(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := testUser()

		_, err := s.GetSummary(ctx, user, day1)
		assert.ErrorIs(t, err, ErrNotFound)

		ds := models.NewDailySummary(user, day1)
		ds.Steps = models.Int(9000)
		ds.SleepStartTime = &civil.Time{Hour: 23, Minute: 15}
		ds.ComputeDerived()
		require.NoError(t, s.SaveSummary(ctx, ds))

		ds.Steps = models.Int(9500)
		ds.Calories = models.Float(2000)
		ds.ComputeDerived()
		require.NoError(t, s.SaveSummary(ctx, ds))

		got, err := s.GetSummary(ctx, user, day1)
		require.NoError(t, err)
		assert.Equal(t, ds.ID, got.ID)
		assert.Equal(t, 9500, *got.Steps)
		assert.Equal(t, 2000.0, *got.Calories)
		assert.Equal(t, civil.Time{Hour: 23, Minute: 15}, *got.SleepStartTime)
		assert.Equal(t, 33, got.DataCompleteness)

		require.NoError(t, s.SaveSummary(ctx, models.NewDailySummary(user, day1.AddDays(1))))
		list, err := s.ListSummaries(ctx, Filter{UserID: user})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, day1.AddDays(1), list[0].Date)

		ranged, err := s.ListSummaries(ctx, Filter{UserID: user, To: day1})
		require.NoError(t, err)
		assert.Len(t, ranged, 1)
	})
}

func TestMetricStatsAndRecordDates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		user := testUser()
		day2 := day1.AddDays(1)
		day4 := day1.AddDays(3)
		save(t, s, user,
			newMetric(user, models.SourceFitbit, models.MetricSteps, 1000, at(day1, 0)),
			newMetric(user, models.SourceFitbit, models.MetricSteps, 3000, at(day2, 0)),
			newMetric(user, models.SourceFitbit, models.MetricWeight, 80, at(day2, 7)),
			newSleep(user, "a", day4, at(day1.AddDays(2), 23), 400),
			newNutrition(user, models.SourceCronometer, day2, 1800),
		)

		stats, err := s.MetricStats(ctx, user)
		require.NoError(t, err)
		require.Len(t, stats, 2)
		assert.Equal(t, models.MetricSteps, stats[0].MetricType)
		assert.Equal(t, 2, stats[0].Count)
		assert.Equal(t, 1000.0, stats[0].Min)
		assert.Equal(t, 3000.0, stats[0].Max)
		assert.Equal(t, 2000.0, stats[0].Avg)
		assert.Equal(t, day1, stats[0].FirstDate)
		assert.Equal(t, day2, stats[0].LastDate)

		dates, err := s.RecordDates(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, []civil.Date{day1, day2, day4}, dates)
	})
}

func TestRebind(t *testing.T) {
	sqlite := &DB{dialect: dialectSQLite}
	pg := &DB{dialect: dialectPostgres}
	q := "SELECT * FROM metrics WHERE user_id = ? AND date >= ? LIMIT ?"
	assert.Equal(t, q, sqlite.rebind(q))
	assert.Equal(t, "SELECT * FROM metrics WHERE user_id = $1 AND date >= $2 LIMIT $3", pg.rebind(q))
}

// openSmallBadger opens a badger store whose transactions overflow after a
// handful of large records.
func openSmallBadger(t *testing.T, dir string) *Badger {
	t.Helper()
	opts := badger.DefaultOptions(dir).
		WithMemTableSize(1 << 20).
		WithValueThreshold(64 << 10).
		WithLogger(nil)
	b, err := openBadger(opts)
	require.NoError(t, err)
	return b
}

func bulkyMetrics(user string, n int) []any {
	blob := strings.Repeat("x", 20<<10)
	recs := make([]any, n)
	for i := range recs {
		m := newMetric(user, models.SourceFitbit, models.MetricHeartRate, float64(60+i), at(day1, 0).Add(time.Duration(i)*time.Minute))
		m.RawPayload = map[string]any{"blob": blob}
		recs[i] = m
	}
	return recs
}

func countKeys(t *testing.T, b *Badger, prefix string) int {
	t.Helper()
	n := 0
	require.NoError(t, b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	}))
	return n
}

func TestBadgerOversizedSavePhaseIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	b := openSmallBadger(t, filepath.Join(t.TempDir(), "badger"))
	t.Cleanup(func() { _ = b.Close() })
	user := testUser()
	recs := bulkyMetrics(user, 50)

	abort := errors.New("parse failed")
	err := b.WithTx(ctx, user, func(tx Tx) error {
		for _, r := range recs {
			if _, err := tx.GetOrCreateMetric(ctx, r.(*models.MetricRecord)); err != nil {
				return err
			}
		}
		return abort
	})
	require.ErrorIs(t, err, abort)
	metrics, err := b.ListMetrics(ctx, Filter{UserID: user})
	require.NoError(t, err)
	assert.Empty(t, metrics)

	assert.Equal(t, 50, save(t, b, user, recs...))
	metrics, err = b.ListMetrics(ctx, Filter{UserID: user})
	require.NoError(t, err)
	assert.Len(t, metrics, 50)
	assert.Zero(t, countKeys(t, b, stagePrefix))
	assert.Zero(t, countKeys(t, b, journalPrefix))

	assert.Equal(t, 0, save(t, b, user, recs...))
}

func TestBadgerRecoversJournaledSavePhases(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "badger")
	b := openSmallBadger(t, dir)
	user := testUser()

	toEntries := func(recs []any) []kv {
		out := make([]kv, len(recs))
		for i, r := range recs {
			m := r.(*models.MetricRecord)
			data, err := marshalJSON(m)
			require.NoError(t, err)
			out[i] = kv{key: metricKey(m), val: data}
		}
		return out
	}

	// Reached its commit point before the process stopped.
	committed := bulkyMetrics(user, 20)
	require.NoError(t, b.stage("phase-a", toEntries(committed)))
	require.NoError(t, b.markCommitted("phase-a"))

	// Never reached it.
	other := testUser()
	require.NoError(t, b.stage("phase-b", toEntries(bulkyMetrics(other, 5))))
	require.NoError(t, b.Close())

	b = openSmallBadger(t, dir)
	t.Cleanup(func() { _ = b.Close() })

	metrics, err := b.ListMetrics(ctx, Filter{UserID: user})
	require.NoError(t, err)
	assert.Len(t, metrics, 20)

	metrics, err = b.ListMetrics(ctx, Filter{UserID: other})
	require.NoError(t, err)
	assert.Empty(t, metrics)

	assert.Zero(t, countKeys(t, b, stagePrefix))
	assert.Zero(t, countKeys(t, b, journalPrefix))
}
