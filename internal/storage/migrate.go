// ABOUTME: Data migration between vitals storage backends.
// ABOUTME: Copies batches, records, and summaries for every user from source to destination.

package storage

import (
	"context"
	"fmt"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary = ImportSummary

// MigrateData copies all data from src to dst. Records already present in
// dst are skipped, so an interrupted migration can simply be rerun.
func MigrateData(ctx context.Context, src, dst Store) (*MigrateSummary, error) {
	data, err := GetAllData(ctx, src, Filter{})
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	summary, err := ImportData(ctx, dst, data)
	if err != nil {
		return nil, fmt.Errorf("write destination: %w", err)
	}
	return summary, nil
}
