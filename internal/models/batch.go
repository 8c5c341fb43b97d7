// ABOUTME: ImportBatch tracks one ingestion run from pending to a terminal state.
// ABOUTME: Holds provenance, counts, and a capped error list.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of an ImportBatch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// ImportBatch records one ingestion call.
type ImportBatch struct {
	BatchID          uuid.UUID   `json:"batch_id" yaml:"batch_id"`
	UserID           string      `json:"user_id" yaml:"user_id"`
	Source           string      `json:"source" yaml:"source"`
	Status           BatchStatus `json:"status" yaml:"status"`
	FileName         string      `json:"file_name" yaml:"file_name"`
	FileType         string      `json:"file_type" yaml:"file_type"`
	RecordsProcessed int         `json:"records_processed" yaml:"records_processed"`
	RecordsCreated   int         `json:"records_created" yaml:"records_created"`
	RecordsSkipped   int         `json:"records_skipped" yaml:"records_skipped"`
	Errors           []string    `json:"errors" yaml:"errors"`
	StartedAt        time.Time   `json:"started_at" yaml:"started_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// NewImportBatch creates a pending batch with a fresh id.
func NewImportBatch(userID, source, fileName, fileType string) *ImportBatch {
	return &ImportBatch{
		BatchID:   uuid.New(),
		UserID:    userID,
		Source:    source,
		Status:    BatchPending,
		FileName:  fileName,
		FileType:  fileType,
		Errors:    []string{},
		StartedAt: time.Now().UTC(),
	}
}

// Transition moves the batch to a new status, rejecting illegal moves.
func (b *ImportBatch) Transition(to BatchStatus) error {
	switch {
	case b.Status.Terminal():
		return fmt.Errorf("batch %s already %s", b.BatchID, b.Status)
	case b.Status == BatchPending && to != BatchProcessing && to != BatchFailed:
		return fmt.Errorf("batch %s: cannot move from %s to %s", b.BatchID, b.Status, to)
	case b.Status == BatchProcessing && !to.Terminal():
		return fmt.Errorf("batch %s: cannot move from %s to %s", b.BatchID, b.Status, to)
	}
	b.Status = to
	return nil
}

// Finish moves the batch to a terminal status, stores at most maxErrors
// error strings, and stamps the completion time.
func (b *ImportBatch) Finish(status BatchStatus, errs []string, maxErrors int) error {
	if err := b.Transition(status); err != nil {
		return err
	}
	if maxErrors > 0 && len(errs) > maxErrors {
		errs = errs[:maxErrors]
	}
	b.Errors = append([]string{}, errs...)
	now := time.Now().UTC()
	b.CompletedAt = &now
	return nil
}
