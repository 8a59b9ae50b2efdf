package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fuelwatch/internal/models"
)

// StateSQLite persists per-vehicle snapshots in the vehicle_state table.
type StateSQLite struct {
	db *sql.DB
}

// NewStateSQLite returns the sqlite-backed state repository.
func NewStateSQLite(db *sql.DB) *StateSQLite { return &StateSQLite{db: db} }

const (
	upsertStateSQL = `
		INSERT INTO vehicle_state (vehicle_id, seeded, smoothed_pct, last_raw_pct, drift_pct, drift_warning,
			last_update_at, mpg_current, distance_accum_mi, fuel_accum_gal, window_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vehicle_id) DO UPDATE SET
			seeded=excluded.seeded,
			smoothed_pct=excluded.smoothed_pct,
			last_raw_pct=excluded.last_raw_pct,
			drift_pct=excluded.drift_pct,
			drift_warning=excluded.drift_warning,
			last_update_at=excluded.last_update_at,
			mpg_current=excluded.mpg_current,
			distance_accum_mi=excluded.distance_accum_mi,
			fuel_accum_gal=excluded.fuel_accum_gal,
			window_count=excluded.window_count,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT vehicle_id, seeded, smoothed_pct, last_raw_pct, drift_pct, drift_warning,
			last_update_at, mpg_current, distance_accum_mi, fuel_accum_gal, window_count, updated_at
		FROM vehicle_state
	`
)

// Save upserts the vehicle's snapshot. Timestamps are persisted as UTC; a
// zero UpdatedAt is filled with now.
func (r *StateSQLite) Save(ctx context.Context, s models.VehicleState) error {
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	} else {
		updated = updated.UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertStateSQL,
		s.VehicleID,
		s.Seeded,
		s.SmoothedPct,
		s.LastRawPct,
		s.DriftPct,
		s.DriftWarning,
		s.LastUpdateAt.UTC(),
		s.Mpg.MpgCurrent,
		s.Mpg.DistanceAccumMi,
		s.Mpg.FuelAccumGal,
		s.Mpg.WindowCount,
		updated,
	)
	return err
}

// Load fetches one vehicle's snapshot. No row yields a zero value, nil error.
func (r *StateSQLite) Load(ctx context.Context, vehicleID string) (models.VehicleState, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL+" WHERE vehicle_id=?", vehicleID)
	s, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.VehicleState{}, nil
		}
		return models.VehicleState{}, err
	}
	return s, nil
}

// List returns every vehicle's snapshot ordered by vehicle id.
func (r *StateSQLite) List(ctx context.Context) ([]models.VehicleState, error) {
	rows, err := r.db.QueryContext(ctx, selectStateSQL+" ORDER BY vehicle_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.VehicleState, 0, 32)
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes the vehicle's snapshot entirely (operator state-clear).
func (r *StateSQLite) Delete(ctx context.Context, vehicleID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM vehicle_state WHERE vehicle_id=?`, vehicleID)
	return err
}

// ResetMpg zeroes the MPG accumulators and EMA, keeping the fuel state.
func (r *StateSQLite) ResetMpg(ctx context.Context, vehicleID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE vehicle_state
		SET mpg_current=0, distance_accum_mi=0, fuel_accum_gal=0, window_count=0, updated_at=?
		WHERE vehicle_id=?
	`, time.Now().UTC(), vehicleID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (models.VehicleState, error) {
	var s models.VehicleState
	if err := row.Scan(
		&s.VehicleID,
		&s.Seeded,
		&s.SmoothedPct,
		&s.LastRawPct,
		&s.DriftPct,
		&s.DriftWarning,
		&s.LastUpdateAt,
		&s.Mpg.MpgCurrent,
		&s.Mpg.DistanceAccumMi,
		&s.Mpg.FuelAccumGal,
		&s.Mpg.WindowCount,
		&s.UpdatedAt,
	); err != nil {
		return models.VehicleState{}, err
	}
	s.Mpg.VehicleID = s.VehicleID
	s.LastUpdateAt = s.LastUpdateAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}
