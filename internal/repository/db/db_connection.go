package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// Init opens/creates the sqlite file and ensures the schema exists.
func Init(path string) (*sql.DB, error) {
	conn, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Single writer; sqlite contends badly otherwise.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return conn, nil
}

const schemaVehicleState = `
CREATE TABLE IF NOT EXISTS vehicle_state (
    vehicle_id TEXT PRIMARY KEY,
    seeded BOOLEAN NOT NULL,
    smoothed_pct REAL NOT NULL,
    last_raw_pct REAL NOT NULL,
    drift_pct REAL NOT NULL,
    drift_warning BOOLEAN NOT NULL,
    last_update_at TIMESTAMP NOT NULL,
    mpg_current REAL NOT NULL,
    distance_accum_mi REAL NOT NULL,
    fuel_accum_gal REAL NOT NULL,
    window_count INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaSampleMetrics = `
CREATE TABLE IF NOT EXISTS sample_metrics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    vehicle_id TEXT NOT NULL,
    captured_at TIMESTAMP NOT NULL,
    smoothed_pct REAL NOT NULL,
    drift_pct REAL NOT NULL,
    drift_warning BOOLEAN NOT NULL,
    mpg_current REAL NOT NULL,
    is_idle BOOLEAN NOT NULL,
    idle_gph REAL,
    idle_method TEXT
);
CREATE INDEX IF NOT EXISTS idx_metrics_vehicle_time ON sample_metrics (vehicle_id, captured_at);
`

const schemaRefuelEvents = `
CREATE TABLE IF NOT EXISTS refuel_events (
    id TEXT PRIMARY KEY,
    vehicle_id TEXT NOT NULL,
    detected_at TIMESTAMP NOT NULL,
    fuel_before_pct REAL NOT NULL,
    fuel_after_pct REAL NOT NULL,
    gallons_added REAL NOT NULL,
    confidence TEXT NOT NULL,
    gap_minutes REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refuels_vehicle_time ON refuel_events (vehicle_id, detected_at);
`

const schemaRefuelRejections = `
CREATE TABLE IF NOT EXISTS refuel_rejections (
    id TEXT PRIMARY KEY,
    vehicle_id TEXT NOT NULL,
    occurred_at TIMESTAMP NOT NULL,
    jump_pct REAL NOT NULL,
    gallons REAL NOT NULL,
    gap_minutes REAL NOT NULL,
    reason TEXT NOT NULL
);
`

func ensureSchema(conn *sql.DB) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaVehicleState,
		schemaSampleMetrics,
		schemaRefuelEvents,
		schemaRefuelRejections,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
