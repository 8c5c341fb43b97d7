// ABOUTME: SQL schema definition and initialization for both dialects.
// ABOUTME: Defines tables for metrics, sleep, nutrition, daily summaries, and import batches.
package storage

import "fmt"

// Column types are chosen to mean the same thing in SQLite and Postgres.
// Timestamps are fixed-width UTC text so they sort lexically.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS import_batches (
		batch_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		records_processed INTEGER NOT NULL DEFAULT 0,
		records_created INTEGER NOT NULL DEFAULT 0,
		records_skipped INTEGER NOT NULL DEFAULT 0,
		errors TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS metrics (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		source TEXT NOT NULL,
		metric_type TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		unit TEXT NOT NULL,
		ts TEXT NOT NULL,
		date TEXT NOT NULL,
		metadata TEXT,
		raw_payload TEXT,
		import_batch_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, source, metric_type, ts)
	)`,

	`CREATE TABLE IF NOT EXISTS sleep_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		source TEXT NOT NULL,
		source_log_id TEXT NOT NULL,
		date_of_sleep TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		minutes_asleep INTEGER,
		minutes_awake INTEGER,
		deep_minutes INTEGER,
		light_minutes INTEGER,
		rem_minutes INTEGER,
		efficiency INTEGER,
		sleep_score INTEGER,
		stages TEXT,
		raw_payload TEXT,
		import_batch_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, source, source_log_id)
	)`,

	`CREATE TABLE IF NOT EXISTS nutrition_days (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		source TEXT NOT NULL,
		date TEXT NOT NULL,
		calories DOUBLE PRECISION,
		protein_g DOUBLE PRECISION,
		carbs_g DOUBLE PRECISION,
		fat_g DOUBLE PRECISION,
		fiber_g DOUBLE PRECISION,
		sugar_g DOUBLE PRECISION,
		sodium_mg DOUBLE PRECISION,
		water_ml DOUBLE PRECISION,
		micronutrients TEXT,
		metadata TEXT,
		raw_payload TEXT,
		import_batch_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, source, date)
	)`,

	`CREATE TABLE IF NOT EXISTS daily_summaries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		data TEXT NOT NULL,
		data_completeness INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (user_id, date)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_metrics_user_date ON metrics(user_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_user_type_ts ON metrics(user_id, metric_type, ts DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_sleep_user_date ON sleep_sessions(user_id, date_of_sleep)`,
	`CREATE INDEX IF NOT EXISTS idx_nutrition_user_date ON nutrition_days(user_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_user_started ON import_batches(user_id, started_at DESC)`,
}

// initSchema creates or updates the database schema.
func (d *DB) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
