// ABOUTME: Daily summary storage for the SQL store.
// ABOUTME: Summaries are stored as a JSON document upserted by user and date.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/harperreed/vitals/internal/models"
)

// GetSummary returns the stored summary for a user and date.
func (d *DB) GetSummary(ctx context.Context, userID string, date civil.Date) (*models.DailySummary, error) {
	query := `SELECT data FROM daily_summaries WHERE user_id = ? AND date = ?`

	var data string
	err := d.db.QueryRowContext(ctx, d.rebind(query), userID, date.String()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get summary %s: %w", date, ErrNotFound)
		}
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return decodeSummary(data)
}

// SaveSummary inserts or replaces the summary for its user and date.
func (d *DB) SaveSummary(ctx context.Context, s *models.DailySummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	query := `
		INSERT INTO daily_summaries (id, user_id, date, data, data_completeness, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			data = excluded.data,
			data_completeness = excluded.data_completeness,
			updated_at = excluded.updated_at
	`
	_, err = d.db.ExecContext(ctx, d.rebind(query),
		s.ID.String(),
		s.UserID,
		s.Date.String(),
		string(data),
		s.DataCompleteness,
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// ListSummaries returns summaries matching f, most recent date first.
func (d *DB) ListSummaries(ctx context.Context, f Filter) ([]*models.DailySummary, error) {
	f.Source = ""
	w := filterWhere(f, "date")
	query := `SELECT data FROM daily_summaries` + w.String() + ` ORDER BY date DESC`
	limit, args := limitClause(f.Limit, w.args)

	rows, err := d.db.QueryContext(ctx, d.rebind(query+limit), args...)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.DailySummary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s, err := decodeSummary(data)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func decodeSummary(data string) (*models.DailySummary, error) {
	s, err := unmarshalJSON[models.DailySummary]([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return s, nil
}
