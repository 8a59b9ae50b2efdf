package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"fuelwatch/internal/models"
)

// RefuelSQLite persists refuel events and rejections.
type RefuelSQLite struct {
	db *sql.DB
}

// NewRefuelSQLite returns the sqlite-backed refuel repository.
func NewRefuelSQLite(db *sql.DB) *RefuelSQLite { return &RefuelSQLite{db: db} }

// Append inserts a refuel event. Missing id is filled.
func (r *RefuelSQLite) Append(ctx context.Context, e models.RefuelEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refuel_events (id, vehicle_id, detected_at, fuel_before_pct, fuel_after_pct,
			gallons_added, confidence, gap_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.EventID,
		e.VehicleID,
		e.DetectedAt.UTC(),
		e.FuelBeforePct,
		e.FuelAfterPct,
		e.GallonsAdded,
		strings.ToLower(e.Confidence),
		e.GapMinutes,
	)
	return err
}

// ExistsNear reports whether the vehicle already has an event within ±window
// of the given time. This is the dedup key for bursty sensor updates.
func (r *RefuelSQLite) ExistsNear(ctx context.Context, vehicleID string, at time.Time, window time.Duration) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM refuel_events
		WHERE vehicle_id = ? AND detected_at BETWEEN ? AND ?
	`,
		vehicleID,
		at.Add(-window).UTC(),
		at.Add(window).UTC(),
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns events matching the filters, oldest first.
func (r *RefuelSQLite) List(ctx context.Context, vehicleID string, from, to time.Time, confidence string) ([]models.RefuelEvent, error) {
	var (
		conds []string
		args  []any
	)
	if vehicleID != "" {
		conds = append(conds, "vehicle_id = ?")
		args = append(args, vehicleID)
	}
	if !from.IsZero() {
		conds = append(conds, "detected_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "detected_at <= ?")
		args = append(args, to.UTC())
	}
	if confidence != "" {
		conds = append(conds, "confidence = ?")
		args = append(args, strings.ToLower(confidence))
	}

	q := `SELECT id, vehicle_id, detected_at, fuel_before_pct, fuel_after_pct, gallons_added, confidence, gap_minutes
		FROM refuel_events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY detected_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RefuelEvent, 0, 32)
	for rows.Next() {
		var e models.RefuelEvent
		if err := rows.Scan(
			&e.EventID,
			&e.VehicleID,
			&e.DetectedAt,
			&e.FuelBeforePct,
			&e.FuelAfterPct,
			&e.GallonsAdded,
			&e.Confidence,
			&e.GapMinutes,
		); err != nil {
			return nil, err
		}
		e.DetectedAt = e.DetectedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendRejection inserts an audit record for a non-qualifying jump.
func (r *RefuelSQLite) AppendRejection(ctx context.Context, rej models.RefuelRejection) error {
	if rej.RejectionID == "" {
		rej.RejectionID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refuel_rejections (id, vehicle_id, occurred_at, jump_pct, gallons, gap_minutes, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rej.RejectionID,
		rej.VehicleID,
		rej.OccurredAt.UTC(),
		rej.JumpPct,
		rej.Gallons,
		rej.GapMinutes,
		rej.Reason,
	)
	return err
}

// ListRejections returns the audit trail, newest first, optionally scoped to
// one vehicle.
func (r *RefuelSQLite) ListRejections(ctx context.Context, vehicleID string) ([]models.RefuelRejection, error) {
	q := `SELECT id, vehicle_id, occurred_at, jump_pct, gallons, gap_minutes, reason FROM refuel_rejections`
	var args []any
	if vehicleID != "" {
		q += " WHERE vehicle_id = ?"
		args = append(args, vehicleID)
	}
	q += " ORDER BY occurred_at DESC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RefuelRejection, 0, 32)
	for rows.Next() {
		var rej models.RefuelRejection
		if err := rows.Scan(
			&rej.RejectionID,
			&rej.VehicleID,
			&rej.OccurredAt,
			&rej.JumpPct,
			&rej.Gallons,
			&rej.GapMinutes,
			&rej.Reason,
		); err != nil {
			return nil, err
		}
		rej.OccurredAt = rej.OccurredAt.UTC()
		out = append(out, rej)
	}
	return out, rows.Err()
}
