// ABOUTME: Storage contract shared by the SQL and badger backends.
// ABOUTME: Ingestion writes go through Tx get-or-create calls keyed on natural keys.
package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// Backends lists the supported storage backends.
var Backends = []string{BackendSQLite, BackendPostgres, BackendBadger}

// Tx is the write side of one ingestion save phase. Each call reports
// whether a new row was created; an existing row with the same natural key
// is left untouched.
type Tx interface {
	GetOrCreateMetric(ctx context.Context, m *models.MetricRecord) (bool, error)
	GetOrCreateSleep(ctx context.Context, s *models.SleepSession) (bool, error)
	GetOrCreateNutrition(ctx context.Context, n *models.NutritionDay) (bool, error)
}

// Store is the persistence contract for vitals data.
type Store interface {
	// Import batches
	CreateBatch(ctx context.Context, b *models.ImportBatch) error
	UpdateBatch(ctx context.Context, b *models.ImportBatch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error)
	ListBatches(ctx context.Context, userID string, limit int) ([]*models.ImportBatch, error)

	// WithTx runs fn in one transaction. lockKey names the writer for
	// backends that serialize writers themselves; it may be empty.
	WithTx(ctx context.Context, lockKey string, fn func(Tx) error) error

	// Reads
	ListMetrics(ctx context.Context, f Filter) ([]*models.MetricRecord, error)
	ListSleep(ctx context.Context, f Filter) ([]*models.SleepSession, error)
	ListNutrition(ctx context.Context, f Filter) ([]*models.NutritionDay, error)
	MetricStats(ctx context.Context, userID string) ([]MetricStat, error)
	RecordDates(ctx context.Context, userID string) ([]civil.Date, error)

	// Daily summaries
	GetSummary(ctx context.Context, userID string, date civil.Date) (*models.DailySummary, error)
	SaveSummary(ctx context.Context, s *models.DailySummary) error
	ListSummaries(ctx context.Context, f Filter) ([]*models.DailySummary, error)

	Close() error
}

// Filter narrows list queries. Zero values mean no constraint; From and To
// are inclusive calendar dates.
type Filter struct {
	UserID     string
	Source     models.Source
	MetricType models.MetricType
	From       civil.Date
	To         civil.Date
	Limit      int
}

// OnDate restricts the filter to a single day.
func (f Filter) OnDate(d civil.Date) Filter {
	f.From, f.To = d, d
	return f
}

// matchDate reports whether d falls inside the filter's date window.
func (f Filter) matchDate(d civil.Date) bool {
	if f.From.IsValid() && d.Before(f.From) {
		return false
	}
	if f.To.IsValid() && d.After(f.To) {
		return false
	}
	return true
}

// MetricStat summarizes one metric type for a user.
type MetricStat struct {
	MetricType models.MetricType `json:"metric_type"`
	Count      int               `json:"count"`
	Min        float64           `json:"min"`
	Max        float64           `json:"max"`
	Avg        float64           `json:"avg"`
	FirstDate  civil.Date        `json:"first_date"`
	LastDate   civil.Date        `json:"last_date"`
}

// DataDir returns the default data directory following XDG spec.
func DataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "vitals")
}

// IsDirNonEmpty checks whether a directory exists and contains any entries.
// Returns false if the directory does not exist or is empty.
func IsDirNonEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}
