// ABOUTME: Metric storage for the SQL store.
// ABOUTME: Get-or-create on the natural key, filtered listing, and per-type statistics.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
)

// where accumulates AND-ed conditions for a filtered query.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// filterWhere builds the user, source, and date conditions of f against
// the given date column.
func filterWhere(f Filter, dateCol string) *where {
	w := &where{}
	if f.UserID != "" {
		w.add("user_id = ?", f.UserID)
	}
	if f.Source != "" {
		w.add("source = ?", string(f.Source))
	}
	if f.From.IsValid() {
		w.add(dateCol+" >= ?", f.From.String())
	}
	if f.To.IsValid() {
		w.add(dateCol+" <= ?", f.To.String())
	}
	return w
}

func limitClause(limit int, args []any) (string, []any) {
	if limit > 0 {
		return " LIMIT ?", append(args, limit)
	}
	return "", args
}

// GetOrCreateMetric inserts m unless a row with the same user, source,
// metric type, and timestamp exists.
func (t *sqlTx) GetOrCreateMetric(ctx context.Context, m *models.MetricRecord) (bool, error) {
	metadata, err := encodeMap(m.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}
	raw, err := encodeMap(m.RawPayload)
	if err != nil {
		return false, fmt.Errorf("encode raw payload: %w", err)
	}

	query := `
		INSERT INTO metrics (id, user_id, source, metric_type, value, unit, ts, date,
			metadata, raw_payload, import_batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`
	created, err := t.insertIgnore(ctx, query,
		m.ID,
		m.UserID,
		string(m.Source),
		string(m.MetricType),
		m.Value,
		m.Unit,
		formatTime(m.Timestamp),
		m.Date.String(),
		metadata,
		raw,
		m.BatchID.String(),
		formatTime(m.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("create metric: %w", err)
	}
	return created, nil
}

// ListMetrics returns metrics matching f, most recent first.
func (d *DB) ListMetrics(ctx context.Context, f Filter) ([]*models.MetricRecord, error) {
	w := filterWhere(f, "date")
	if f.MetricType != "" {
		w.add("metric_type = ?", string(f.MetricType))
	}

	query := `
		SELECT id, user_id, source, metric_type, value, unit, ts, date,
			metadata, raw_payload, import_batch_id, created_at
		FROM metrics` + w.String() + `
		ORDER BY ts DESC, source`
	limit, args := limitClause(f.Limit, w.args)

	rows, err := d.db.QueryContext(ctx, d.rebind(query+limit), args...)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*models.MetricRecord
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// MetricStats returns count, range, mean, and date span per metric type.
func (d *DB) MetricStats(ctx context.Context, userID string) ([]MetricStat, error) {
	query := `
		SELECT metric_type, COUNT(*), MIN(value), MAX(value), AVG(value), MIN(date), MAX(date)
		FROM metrics
		WHERE user_id = ?
		GROUP BY metric_type
		ORDER BY metric_type
	`
	rows, err := d.db.QueryContext(ctx, d.rebind(query), userID)
	if err != nil {
		return nil, fmt.Errorf("metric stats: %w", err)
	}
	defer rows.Close()

	var stats []MetricStat
	for rows.Next() {
		var st MetricStat
		var metricType, first, last string
		if err := rows.Scan(&metricType, &st.Count, &st.Min, &st.Max, &st.Avg, &first, &last); err != nil {
			return nil, fmt.Errorf("scan metric stat: %w", err)
		}
		st.MetricType = models.MetricType(metricType)
		if st.FirstDate, err = parseDate(first); err != nil {
			return nil, err
		}
		if st.LastDate, err = parseDate(last); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// RecordDates returns every distinct date carrying a metric, sleep session,
// or nutrition day for the user, ascending.
func (d *DB) RecordDates(ctx context.Context, userID string) ([]civil.Date, error) {
	query := `
		SELECT date FROM metrics WHERE user_id = ?
		UNION
		SELECT date_of_sleep FROM sleep_sessions WHERE user_id = ?
		UNION
		SELECT date FROM nutrition_days WHERE user_id = ?
		ORDER BY 1
	`
	rows, err := d.db.QueryContext(ctx, d.rebind(query), userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("record dates: %w", err)
	}
	defer rows.Close()

	var dates []civil.Date
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan record date: %w", err)
		}
		date, err := parseDate(s)
		if err != nil {
			return nil, err
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMetric(row scanner) (*models.MetricRecord, error) {
	var m models.MetricRecord
	var source, metricType, ts, date, batchID, createdAt string
	var metadata, raw sql.NullString

	err := row.Scan(&m.ID, &m.UserID, &source, &metricType, &m.Value, &m.Unit, &ts, &date,
		&metadata, &raw, &batchID, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan metric: %w", err)
	}

	m.Source = models.Source(source)
	m.MetricType = models.MetricType(metricType)
	if m.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	if m.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	m.BatchID, _ = uuid.Parse(batchID)
	if err := decodeJSON(metadata, &m.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := decodeJSON(raw, &m.RawPayload); err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	return &m, nil
}
