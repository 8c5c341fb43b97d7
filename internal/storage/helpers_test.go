// ABOUTME: Shared fixtures for storage tests.
// ABOUTME: Runs each test against sqlite, badger, and postgres when configured.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a temporary SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "vitals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupTestBadger(t *testing.T) *Badger {
	t.Helper()
	b, err := OpenBadger(filepath.Join(t.TempDir(), "badger"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// forEachStore runs fn once per available backend. Postgres runs only when
// VITALS_TEST_POSTGRES_DSN is set; tests isolate themselves by user id.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run(BackendSQLite, func(t *testing.T) { fn(t, setupTestDB(t)) })
	t.Run(BackendBadger, func(t *testing.T) { fn(t, setupTestBadger(t)) })
	t.Run(BackendPostgres, func(t *testing.T) {
		dsn := os.Getenv("VITALS_TEST_POSTGRES_DSN")
		if dsn == "" {
			t.Skip("VITALS_TEST_POSTGRES_DSN not set")
		}
		db, err := OpenPostgres(context.Background(), dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		fn(t, db)
	})
}

func testUser() string {
	return "user-" + uuid.NewString()[:8]
}

var day1 = civil.Date{Year: 2024, Month: 3, Day: 10}

func at(d civil.Date, hour int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, 0, 0, 0, time.UTC)
}

func newMetric(user string, src models.Source, mt models.MetricType, value float64, ts time.Time) *models.MetricRecord {
	p := models.NewMetricPoint(src, mt, value, ts)
	return models.NewMetricRecord(user, uuid.New(), p)
}

func newSleep(user, logID string, date civil.Date, start time.Time, minutes int) *models.SleepSession {
	r := &models.SleepRecord{
		RecordBase:      models.RecordBase{Source: models.SourceFitbit, Timestamp: start, Date: date},
		Start:           start,
		End:             start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
		Detail: models.SleepDetail{
			SourceLogID:   logID,
			MinutesAsleep: models.Int(minutes - 30),
			DeepMinutes:   models.Int(60),
			Stages:        []models.SleepStage{{DateTime: "2024-03-09T23:00:00.000", Level: "light", Seconds: 600}},
		},
	}
	return models.NewSleepSession(user, uuid.New(), r)
}

func newNutrition(user string, src models.Source, date civil.Date, calories float64) *models.NutritionDay {
	r := &models.NutritionRecord{
		RecordBase: models.RecordBase{Source: src, Timestamp: at(date, 0), Date: date},
		Detail: models.NutritionDetail{
			Calories:       models.Float(calories),
			ProteinG:       models.Float(100),
			Micronutrients: map[string]float64{"vitamin_c_mg": 90},
		},
	}
	return models.NewNutritionDay(user, uuid.New(), r)
}

// save writes records in one transaction and returns how many were created.
func save(t *testing.T, s Store, user string, recs ...any) int {
	t.Helper()
	ctx := context.Background()
	created := 0
	err := s.WithTx(ctx, user, func(tx Tx) error {
		for _, r := range recs {
			var ok bool
			var err error
			switch v := r.(type) {
			case *models.MetricRecord:
				ok, err = tx.GetOrCreateMetric(ctx, v)
			case *models.SleepSession:
				ok, err = tx.GetOrCreateSleep(ctx, v)
			case *models.NutritionDay:
				ok, err = tx.GetOrCreateNutrition(ctx, v)
			default:
				t.Fatalf("unexpected record %T", r)
			}
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	require.NoError(t, err)
	return created
}

func writeTestFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
}
