// ABOUTME: Sleep session storage for the SQL store.
// ABOUTME: Sessions are unique per user, source, and source log id.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
)

// GetOrCreateSleep inserts s unless the source log id is already stored.
func (t *sqlTx) GetOrCreateSleep(ctx context.Context, s *models.SleepSession) (bool, error) {
	stages, err := encodeJSON(s.Stages, len(s.Stages) == 0)
	if err != nil {
		return false, fmt.Errorf("encode stages: %w", err)
	}
	raw, err := encodeMap(s.RawPayload)
	if err != nil {
		return false, fmt.Errorf("encode raw payload: %w", err)
	}

	query := `
		INSERT INTO sleep_sessions (id, user_id, source, source_log_id, date_of_sleep,
			start_time, end_time, duration_minutes, minutes_asleep, minutes_awake,
			deep_minutes, light_minutes, rem_minutes, efficiency, sleep_score,
			stages, raw_payload, import_batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`
	created, err := t.insertIgnore(ctx, query,
		s.ID,
		s.UserID,
		string(s.Source),
		s.SourceLogID,
		s.DateOfSleep.String(),
		formatTime(s.StartTime),
		formatTime(s.EndTime),
		s.DurationMinutes,
		s.MinutesAsleep,
		s.MinutesAwake,
		s.DeepMinutes,
		s.LightMinutes,
		s.REMMinutes,
		s.Efficiency,
		s.SleepScore,
		stages,
		raw,
		s.BatchID.String(),
		formatTime(s.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("create sleep session: %w", err)
	}
	return created, nil
}

// ListSleep returns sleep sessions matching f, most recent night first.
func (d *DB) ListSleep(ctx context.Context, f Filter) ([]*models.SleepSession, error) {
	w := filterWhere(f, "date_of_sleep")
	query := `
		SELECT id, user_id, source, source_log_id, date_of_sleep, start_time, end_time,
			duration_minutes, minutes_asleep, minutes_awake, deep_minutes, light_minutes,
			rem_minutes, efficiency, sleep_score, stages, raw_payload, import_batch_id, created_at
		FROM sleep_sessions` + w.String() + `
		ORDER BY date_of_sleep DESC, start_time DESC`
	limit, args := limitClause(f.Limit, w.args)

	rows, err := d.db.QueryContext(ctx, d.rebind(query+limit), args...)
	if err != nil {
		return nil, fmt.Errorf("list sleep sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.SleepSession
	for rows.Next() {
		s, err := scanSleep(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSleep(row scanner) (*models.SleepSession, error) {
	var s models.SleepSession
	var source, date, start, end, batchID, createdAt string
	var stages, raw sql.NullString

	err := row.Scan(&s.ID, &s.UserID, &source, &s.SourceLogID, &date, &start, &end,
		&s.DurationMinutes, &s.MinutesAsleep, &s.MinutesAwake, &s.DeepMinutes, &s.LightMinutes,
		&s.REMMinutes, &s.Efficiency, &s.SleepScore, &stages, &raw, &batchID, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan sleep session: %w", err)
	}

	s.Source = models.Source(source)
	if s.DateOfSleep, err = parseDate(date); err != nil {
		return nil, err
	}
	if s.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if s.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	s.BatchID, _ = uuid.Parse(batchID)
	if err := decodeJSON(stages, &s.Stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	if err := decodeJSON(raw, &s.RawPayload); err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	return &s, nil
}
