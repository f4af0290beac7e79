// Package store archives campaign results in a SQLite database so runs can
// be compared across invocations.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema for the campaign archive.
const schemaV1 = `
-- One row per campaign invocation
CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    seed INTEGER NOT NULL,
    excluded INTEGER NOT NULL DEFAULT 0,
    elapsed_ns INTEGER NOT NULL DEFAULT 0,
    skipped TEXT,        -- JSON array of skipped (ring, fault) pairs
    created_at TEXT NOT NULL
);

-- One row per (ring, fault scenario) pair of a campaign
CREATE TABLE IF NOT EXISTS scenarios (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    ring_name TEXT NOT NULL,
    sensors INTEGER NOT NULL,
    pole_pairs INTEGER NOT NULL,
    position_tolerance_deg REAL NOT NULL DEFAULT 0,
    fault_name TEXT NOT NULL,
    failures INTEGER NOT NULL DEFAULT 0,
    excluded INTEGER NOT NULL DEFAULT 0,
    valid INTEGER NOT NULL DEFAULT 1,
    stats TEXT           -- JSON map of metric name to summary
);
CREATE INDEX IF NOT EXISTS idx_scenarios_campaign ON scenarios(campaign_id);

-- One row per Monte Carlo run of a scenario
CREATE TABLE IF NOT EXISTS runs (
    scenario_id INTEGER NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
    run_index INTEGER NOT NULL,
    params TEXT NOT NULL,  -- JSON of the drawn run parameters
    error_mean REAL NOT NULL,
    error_std REAL NOT NULL,
    error_max REAL NOT NULL,
    error_p99 REAL NOT NULL,
    resolution_bits_max REAL NOT NULL,
    resolution_bits_p99 REAL NOT NULL,
    latency TEXT,          -- JSON, NULL when speed effects were off
    PRIMARY KEY (scenario_id, run_index)
);

-- Schema version
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema initializes the database schema, creating all tables and
// applying migrations as needed.
func InitSchema(ctx context.Context, db *sql.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// Schema version table doesn't exist yet, create fresh schema
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if currentVersion < SchemaVersion {
		if err := migrateSchema(ctx, db, currentVersion); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// createSchema creates the initial database schema.
func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// migrateSchema applies migrations from currentVersion to SchemaVersion.
func migrateSchema(ctx context.Context, db *sql.DB, currentVersion int) error {
	// Only one version so far; migrations go here when v2 lands.
	_ = currentVersion
	return nil
}
