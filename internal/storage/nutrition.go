// ABOUTME: Nutrition day storage for the SQL store.
// ABOUTME: One row per user, source, and calendar date.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
)

// GetOrCreateNutrition inserts n unless the source already has that day.
func (t *sqlTx) GetOrCreateNutrition(ctx context.Context, n *models.NutritionDay) (bool, error) {
	micros, err := encodeMap(n.Micronutrients)
	if err != nil {
		return false, fmt.Errorf("encode micronutrients: %w", err)
	}
	metadata, err := encodeMap(n.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}
	raw, err := encodeMap(n.RawPayload)
	if err != nil {
		return false, fmt.Errorf("encode raw payload: %w", err)
	}

	query := `
		INSERT INTO nutrition_days (id, user_id, source, date, calories, protein_g, carbs_g,
			fat_g, fiber_g, sugar_g, sodium_mg, water_ml, micronutrients, metadata,
			raw_payload, import_batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`
	created, err := t.insertIgnore(ctx, query,
		n.ID,
		n.UserID,
		string(n.Source),
		n.Date.String(),
		n.Calories,
		n.ProteinG,
		n.CarbsG,
		n.FatG,
		n.FiberG,
		n.SugarG,
		n.SodiumMG,
		n.WaterML,
		micros,
		metadata,
		raw,
		n.BatchID.String(),
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("create nutrition day: %w", err)
	}
	return created, nil
}

// ListNutrition returns nutrition days matching f, most recent first.
func (d *DB) ListNutrition(ctx context.Context, f Filter) ([]*models.NutritionDay, error) {
	w := filterWhere(f, "date")
	query := `
		SELECT id, user_id, source, date, calories, protein_g, carbs_g, fat_g, fiber_g,
			sugar_g, sodium_mg, water_ml, micronutrients, metadata, raw_payload,
			import_batch_id, created_at
		FROM nutrition_days` + w.String() + `
		ORDER BY date DESC, created_at DESC`
	limit, args := limitClause(f.Limit, w.args)

	rows, err := d.db.QueryContext(ctx, d.rebind(query+limit), args...)
	if err != nil {
		return nil, fmt.Errorf("list nutrition days: %w", err)
	}
	defer rows.Close()

	var days []*models.NutritionDay
	for rows.Next() {
		n, err := scanNutrition(rows)
		if err != nil {
			return nil, err
		}
		days = append(days, n)
	}
	return days, rows.Err()
}

func scanNutrition(row scanner) (*models.NutritionDay, error) {
	var n models.NutritionDay
	var source, date, batchID, createdAt string
	var micros, metadata, raw sql.NullString

	err := row.Scan(&n.ID, &n.UserID, &source, &date, &n.Calories, &n.ProteinG, &n.CarbsG,
		&n.FatG, &n.FiberG, &n.SugarG, &n.SodiumMG, &n.WaterML, &micros, &metadata, &raw,
		&batchID, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan nutrition day: %w", err)
	}

	n.Source = models.Source(source)
	if n.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	n.BatchID, _ = uuid.Parse(batchID)
	if err := decodeJSON(micros, &n.Micronutrients); err != nil {
		return nil, fmt.Errorf("decode micronutrients: %w", err)
	}
	if err := decodeJSON(metadata, &n.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := decodeJSON(raw, &n.RawPayload); err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	return &n, nil
}
