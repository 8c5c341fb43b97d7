// ABOUTME: Import batch storage for the SQL store.
// ABOUTME: Batches are created pending and updated once when they finish.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
)

const batchColumns = `batch_id, user_id, source, status, file_name, file_type,
	records_processed, records_created, records_skipped, errors, started_at, completed_at`

// CreateBatch stores a new import batch.
func (d *DB) CreateBatch(ctx context.Context, b *models.ImportBatch) error {
	errs, err := encodeJSON(b.Errors, false)
	if err != nil {
		return fmt.Errorf("encode batch errors: %w", err)
	}

	query := `INSERT INTO import_batches (` + batchColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = d.db.ExecContext(ctx, d.rebind(query),
		b.BatchID.String(),
		b.UserID,
		b.Source,
		string(b.Status),
		b.FileName,
		b.FileType,
		b.RecordsProcessed,
		b.RecordsCreated,
		b.RecordsSkipped,
		errs,
		formatTime(b.StartedAt),
		completedArg(b),
	)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// UpdateBatch overwrites the mutable fields of a stored batch.
func (d *DB) UpdateBatch(ctx context.Context, b *models.ImportBatch) error {
	errs, err := encodeJSON(b.Errors, false)
	if err != nil {
		return fmt.Errorf("encode batch errors: %w", err)
	}

	query := `
		UPDATE import_batches
		SET source = ?, status = ?, file_type = ?, records_processed = ?, records_created = ?,
			records_skipped = ?, errors = ?, completed_at = ?
		WHERE batch_id = ?
	`
	result, err := d.db.ExecContext(ctx, d.rebind(query),
		b.Source,
		string(b.Status),
		b.FileType,
		b.RecordsProcessed,
		b.RecordsCreated,
		b.RecordsSkipped,
		errs,
		completedArg(b),
		b.BatchID.String(),
	)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update batch %s: %w", b.BatchID, ErrNotFound)
	}
	return nil
}

// GetBatch retrieves a batch by id.
func (d *DB) GetBatch(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM import_batches WHERE batch_id = ?`
	b, err := scanBatch(d.db.QueryRowContext(ctx, d.rebind(query), id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get batch %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return b, nil
}

// ListBatches returns a user's batches, newest first.
func (d *DB) ListBatches(ctx context.Context, userID string, limit int) ([]*models.ImportBatch, error) {
	w := &where{}
	if userID != "" {
		w.add("user_id = ?", userID)
	}
	query := `SELECT ` + batchColumns + ` FROM import_batches` + w.String() + ` ORDER BY started_at DESC`
	lim, args := limitClause(limit, w.args)

	rows, err := d.db.QueryContext(ctx, d.rebind(query+lim), args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*models.ImportBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func completedArg(b *models.ImportBatch) any {
	if b.CompletedAt == nil {
		return nil
	}
	return formatTime(*b.CompletedAt)
}

func scanBatch(row scanner) (*models.ImportBatch, error) {
	var b models.ImportBatch
	var id, status, startedAt string
	var errs, completedAt sql.NullString

	err := row.Scan(&id, &b.UserID, &b.Source, &status, &b.FileName, &b.FileType,
		&b.RecordsProcessed, &b.RecordsCreated, &b.RecordsSkipped, &errs, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}

	if b.BatchID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse batch id: %w", err)
	}
	b.Status = models.BatchStatus(status)
	if b.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		b.CompletedAt = &t
	}
	b.Errors = []string{}
	if err := decodeJSON(errs, &b.Errors); err != nil {
		return nil, fmt.Errorf("decode batch errors: %w", err)
	}
	return &b, nil
}
