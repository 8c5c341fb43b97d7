// ABOUTME: Badger key-value Store for single-user embedded deployments.
// ABOUTME: Uses type-prefixed keys built from natural keys and client-side filtering.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
)

const (
	BatchPrefix     = "batch:"
	MetricPrefix    = "metric:"
	SleepPrefix     = "sleep:"
	NutritionPrefix = "nutrition:"
	SummaryPrefix   = "summary:"

	// keySep separates natural key parts; it cannot appear in ids or dates.
	keySep = "\x00"
)

// Badger is the key-value Store.
type Badger struct {
	db *badger.DB
}

var _ Store = (*Badger)(nil)

// OpenBadger opens or creates a badger database in dir. A nil logger
// silences badger's own logging.
func OpenBadger(dir string, logger *log.Logger) (*Badger, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}
	return openBadger(opts)
}

// openBadger opens the database and finishes or discards any save phase an
// earlier process left in the journal.
func openBadger(opts badger.Options) (*Badger, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	b := &Badger{db: db}
	if err := b.recoverJournal(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recover journal: %w", err)
	}
	return b, nil
}

// Close closes the database.
func (b *Badger) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// badgerLogger adapts a charm logger to badger.Logger.
type badgerLogger struct {
	l *log.Logger
}

func (b badgerLogger) Errorf(format string, args ...any)   { b.l.Errorf(strings.TrimSpace(format), args...) }
func (b badgerLogger) Warningf(format string, args ...any) { b.l.Warnf(strings.TrimSpace(format), args...) }
func (b badgerLogger) Infof(format string, args ...any)    { b.l.Debugf(strings.TrimSpace(format), args...) }
func (b badgerLogger) Debugf(format string, args ...any)   { b.l.Debugf(strings.TrimSpace(format), args...) }

func key(prefix string, parts ...string) []byte {
	return []byte(prefix + strings.Join(parts, keySep))
}

// userPrefix scopes a scan to one user, or to the whole type when userID is empty.
func userPrefix(prefix, userID string) []byte {
	if userID == "" {
		return []byte(prefix)
	}
	return []byte(prefix + userID + keySep)
}

func metricKey(m *models.MetricRecord) []byte {
	return key(MetricPrefix, m.UserID, string(m.Source), string(m.MetricType), formatTime(m.Timestamp))
}

func sleepKey(s *models.SleepSession) []byte {
	return key(SleepPrefix, s.UserID, string(s.Source), s.SourceLogID)
}

func nutritionKey(n *models.NutritionDay) []byte {
	return key(NutritionPrefix, n.UserID, string(n.Source), n.Date.String())
}

func summaryKey(userID string, date civil.Date) []byte {
	return key(SummaryPrefix, userID, date.String())
}

func batchKey(id uuid.UUID) []byte {
	return key(BatchPrefix, id.String())
}

// get decodes the value at k, returning ErrNotFound when absent.
func get[T any](txn *badger.Txn, k []byte) (*T, error) {
	item, err := txn.Get(k)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var v *T
	err = item.Value(func(val []byte) error {
		v, err = unmarshalJSON[T](val)
		return err
	})
	return v, err
}

// listByPrefix decodes every value under prefix, skipping entries that fail
// to decode.
func listByPrefix[T any](db *badger.DB, prefix []byte, keep func(*T) bool) ([]*T, error) {
	var results []*T
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				v, err := unmarshalJSON[T](val)
				if err != nil {
					return nil // Skip invalid entries
				}
				if keep == nil || keep(v) {
					results = append(results, v)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return results, err
}

func truncate[T any](items []*T, n int) []*T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// CreateBatch stores a new import batch.
func (b *Badger) CreateBatch(_ context.Context, batch *models.ImportBatch) error {
	data, err := marshalJSON(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(batchKey(batch.BatchID), data)
	}); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// UpdateBatch overwrites a stored batch.
func (b *Badger) UpdateBatch(_ context.Context, batch *models.ImportBatch) error {
	data, err := marshalJSON(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(batchKey(batch.BatchID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("update batch %s: %w", batch.BatchID, ErrNotFound)
			}
			return fmt.Errorf("update batch: %w", err)
		}
		return txn.Set(batchKey(batch.BatchID), data)
	})
}

// GetBatch retrieves a batch by id.
func (b *Badger) GetBatch(_ context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	var batch *models.ImportBatch
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		batch, err = get[models.ImportBatch](txn, batchKey(id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	return batch, nil
}

// ListBatches returns a user's batches, newest first.
func (b *Badger) ListBatches(_ context.Context, userID string, n int) ([]*models.ImportBatch, error) {
	batches, err := listByPrefix(b.db, []byte(BatchPrefix), func(batch *models.ImportBatch) bool {
		return userID == "" || batch.UserID == userID
	})
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	slices.SortFunc(batches, func(x, y *models.ImportBatch) int {
		return y.StartedAt.Compare(x.StartedAt)
	})
	return truncate(batches, n), nil
}

// WithTx collects every write fn makes and applies them only when fn
// succeeds, so a failed save phase leaves nothing behind. Badger is
// embedded, so the lock key is not needed to serialize writers across
// processes.
func (b *Badger) WithTx(_ context.Context, _ string, fn func(Tx) error) error {
	tx := &badgerTx{read: b.db.NewTransaction(false), pending: make(map[string]struct{})}
	defer tx.read.Discard()

	if err := fn(tx); err != nil {
		return err
	}
	if err := b.commit(tx.entries); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// badgerTx implements Tx. Existence checks read a snapshot taken when the
// save phase began plus the writes staged since.
type badgerTx struct {
	read    *badger.Txn
	pending map[string]struct{}
	entries []kv
}

func (t *badgerTx) getOrCreate(k []byte, v any) (bool, error) {
	if _, ok := t.pending[string(k)]; ok {
		return false, nil
	}
	if _, err := t.read.Get(k); err == nil {
		return false, nil
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, err
	}

	data, err := marshalJSON(v)
	if err != nil {
		return false, fmt.Errorf("marshal: %w", err)
	}
	t.pending[string(k)] = struct{}{}
	t.entries = append(t.entries, kv{key: k, val: data})
	return true, nil
}

func (t *badgerTx) GetOrCreateMetric(_ context.Context, m *models.MetricRecord) (bool, error) {
	created, err := t.getOrCreate(metricKey(m), m)
	if err != nil {
		return false, fmt.Errorf("create metric: %w", err)
	}
	return created, nil
}

func (t *badgerTx) GetOrCreateSleep(_ context.Context, s *models.SleepSession) (bool, error) {
	created, err := t.getOrCreate(sleepKey(s), s)
	if err != nil {
		return false, fmt.Errorf("create sleep session: %w", err)
	}
	return created, nil
}

func (t *badgerTx) GetOrCreateNutrition(_ context.Context, n *models.NutritionDay) (bool, error) {
	created, err := t.getOrCreate(nutritionKey(n), n)
	if err != nil {
		return false, fmt.Errorf("create nutrition day: %w", err)
	}
	return created, nil
}

// ListMetrics returns metrics matching f, most recent first.
func (b *Badger) ListMetrics(_ context.Context, f Filter) ([]*models.MetricRecord, error) {
	metrics, err := listByPrefix(b.db, userPrefix(MetricPrefix, f.UserID), func(m *models.MetricRecord) bool {
		return (f.Source == "" || m.Source == f.Source) &&
			(f.MetricType == "" || m.MetricType == f.MetricType) &&
			f.matchDate(m.Date)
	})
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	slices.SortFunc(metrics, func(x, y *models.MetricRecord) int {
		if c := y.Timestamp.Compare(x.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(string(x.Source), string(y.Source))
	})
	return truncate(metrics, f.Limit), nil
}

// ListSleep returns sleep sessions matching f, most recent night first.
func (b *Badger) ListSleep(_ context.Context, f Filter) ([]*models.SleepSession, error) {
	sessions, err := listByPrefix(b.db, userPrefix(SleepPrefix, f.UserID), func(s *models.SleepSession) bool {
		return (f.Source == "" || s.Source == f.Source) && f.matchDate(s.DateOfSleep)
	})
	if err != nil {
		return nil, fmt.Errorf("list sleep sessions: %w", err)
	}
	slices.SortFunc(sessions, func(x, y *models.SleepSession) int {
		if c := compareDate(y.DateOfSleep, x.DateOfSleep); c != 0 {
			return c
		}
		return y.StartTime.Compare(x.StartTime)
	})
	return truncate(sessions, f.Limit), nil
}

// ListNutrition returns nutrition days matching f, most recent first.
func (b *Badger) ListNutrition(_ context.Context, f Filter) ([]*models.NutritionDay, error) {
	days, err := listByPrefix(b.db, userPrefix(NutritionPrefix, f.UserID), func(n *models.NutritionDay) bool {
		return (f.Source == "" || n.Source == f.Source) && f.matchDate(n.Date)
	})
	if err != nil {
		return nil, fmt.Errorf("list nutrition days: %w", err)
	}
	slices.SortFunc(days, func(x, y *models.NutritionDay) int {
		if c := compareDate(y.Date, x.Date); c != 0 {
			return c
		}
		return y.CreatedAt.Compare(x.CreatedAt)
	})
	return truncate(days, f.Limit), nil
}

// MetricStats returns count, range, mean, and date span per metric type.
func (b *Badger) MetricStats(ctx context.Context, userID string) ([]MetricStat, error) {
	metrics, err := b.ListMetrics(ctx, Filter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("metric stats: %w", err)
	}

	byType := map[models.MetricType]*MetricStat{}
	sums := map[models.MetricType]float64{}
	for _, m := range metrics {
		st, ok := byType[m.MetricType]
		if !ok {
			st = &MetricStat{MetricType: m.MetricType, Min: m.Value, Max: m.Value, FirstDate: m.Date, LastDate: m.Date}
			byType[m.MetricType] = st
		}
		st.Count++
		st.Min = min(st.Min, m.Value)
		st.Max = max(st.Max, m.Value)
		if m.Date.Before(st.FirstDate) {
			st.FirstDate = m.Date
		}
		if m.Date.After(st.LastDate) {
			st.LastDate = m.Date
		}
		sums[m.MetricType] += m.Value
	}

	stats := make([]MetricStat, 0, len(byType))
	for mt, st := range byType {
		st.Avg = sums[mt] / float64(st.Count)
		stats = append(stats, *st)
	}
	slices.SortFunc(stats, func(x, y MetricStat) int {
		return strings.Compare(string(x.MetricType), string(y.MetricType))
	})
	return stats, nil
}

// RecordDates returns every distinct date carrying a record for the user, ascending.
func (b *Badger) RecordDates(ctx context.Context, userID string) ([]civil.Date, error) {
	f := Filter{UserID: userID}
	seen := map[civil.Date]bool{}

	metrics, err := b.ListMetrics(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("record dates: %w", err)
	}
	for _, m := range metrics {
		seen[m.Date] = true
	}
	sessions, err := b.ListSleep(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("record dates: %w", err)
	}
	for _, s := range sessions {
		seen[s.DateOfSleep] = true
	}
	days, err := b.ListNutrition(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("record dates: %w", err)
	}
	for _, n := range days {
		seen[n.Date] = true
	}

	dates := make([]civil.Date, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(x, y civil.Date) int { return compareDate(x, y) })
	return dates, nil
}

// GetSummary returns the stored summary for a user and date.
func (b *Badger) GetSummary(_ context.Context, userID string, date civil.Date) (*models.DailySummary, error) {
	var s *models.DailySummary
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		s, err = get[models.DailySummary](txn, summaryKey(userID, date))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get summary %s: %w", date, err)
	}
	return s, nil
}

// SaveSummary inserts or replaces the summary for its user and date.
func (b *Badger) SaveSummary(_ context.Context, s *models.DailySummary) error {
	data, err := marshalJSON(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(summaryKey(s.UserID, s.Date), data)
	}); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// ListSummaries returns summaries matching f, most recent date first.
func (b *Badger) ListSummaries(_ context.Context, f Filter) ([]*models.DailySummary, error) {
	summaries, err := listByPrefix(b.db, userPrefix(SummaryPrefix, f.UserID), func(s *models.DailySummary) bool {
		return f.matchDate(s.Date)
	})
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	slices.SortFunc(summaries, func(x, y *models.DailySummary) int {
		return compareDate(y.Date, x.Date)
	})
	return truncate(summaries, f.Limit), nil
}
