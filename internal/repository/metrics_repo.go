package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"fuelwatch/internal/models"
)

// MetricsSQLite persists the append-only derived metrics rows.
type MetricsSQLite struct {
	db *sql.DB
}

// NewMetricsSQLite returns the sqlite-backed metrics repository.
func NewMetricsSQLite(db *sql.DB) *MetricsSQLite { return &MetricsSQLite{db: db} }

// Append inserts one derived row.
func (r *MetricsSQLite) Append(ctx context.Context, row models.MetricsRow) error {
	var (
		idleGph    sql.NullFloat64
		idleMethod sql.NullString
	)
	if row.IsIdle {
		idleGph = sql.NullFloat64{Float64: row.IdleGph, Valid: true}
		idleMethod = sql.NullString{String: row.IdleMethod, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sample_metrics (vehicle_id, captured_at, smoothed_pct, drift_pct, drift_warning,
			mpg_current, is_idle, idle_gph, idle_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.VehicleID,
		row.CapturedAt.UTC(),
		row.SmoothedPct,
		row.DriftPct,
		row.DriftWarning,
		row.MpgCurrent,
		row.IsIdle,
		idleGph,
		idleMethod,
	)
	return err
}

// List returns rows for a vehicle, newest first, bounded by the time range
// and limit.
func (r *MetricsSQLite) List(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.MetricsRow, error) {
	conds := []string{"vehicle_id = ?"}
	args := []any{vehicleID}
	if !from.IsZero() {
		conds = append(conds, "captured_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "captured_at <= ?")
		args = append(args, to.UTC())
	}

	q := `SELECT id, vehicle_id, captured_at, smoothed_pct, drift_pct, drift_warning, mpg_current, is_idle, idle_gph, idle_method
		FROM sample_metrics WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY captured_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.MetricsRow, 0, limit)
	for rows.Next() {
		var (
			row        models.MetricsRow
			idleGph    sql.NullFloat64
			idleMethod sql.NullString
		)
		if err := rows.Scan(
			&row.ID,
			&row.VehicleID,
			&row.CapturedAt,
			&row.SmoothedPct,
			&row.DriftPct,
			&row.DriftWarning,
			&row.MpgCurrent,
			&row.IsIdle,
			&idleGph,
			&idleMethod,
		); err != nil {
			return nil, err
		}
		row.CapturedAt = row.CapturedAt.UTC()
		if idleGph.Valid {
			row.IdleGph = idleGph.Float64
		}
		if idleMethod.Valid {
			row.IdleMethod = idleMethod.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
