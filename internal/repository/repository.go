package repository

import (
	"context"
	"database/sql"
	"time"

	"fuelwatch/internal/models"
	"fuelwatch/internal/repository/db"
)

// StateRepo persists the per-vehicle fuel/MPG snapshot.
type StateRepo interface {
	Save(ctx context.Context, s models.VehicleState) error
	Load(ctx context.Context, vehicleID string) (models.VehicleState, error)
	List(ctx context.Context) ([]models.VehicleState, error)
	Delete(ctx context.Context, vehicleID string) error
	ResetMpg(ctx context.Context, vehicleID string) error
}

// RefuelRepo persists refuel events and the rejection audit trail.
type RefuelRepo interface {
	Append(ctx context.Context, e models.RefuelEvent) error
	ExistsNear(ctx context.Context, vehicleID string, at time.Time, window time.Duration) (bool, error)
	List(ctx context.Context, vehicleID string, from, to time.Time, confidence string) ([]models.RefuelEvent, error)
	AppendRejection(ctx context.Context, r models.RefuelRejection) error
	ListRejections(ctx context.Context, vehicleID string) ([]models.RefuelRejection, error)
}

// MetricsRepo persists the append-only per-sample derived rows.
type MetricsRepo interface {
	Append(ctx context.Context, row models.MetricsRow) error
	List(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.MetricsRow, error)
}

// Repository aggregates the storage collaborators.
type Repository struct {
	State   StateRepo
	Refuel  RefuelRepo
	Metrics MetricsRepo
}

// NewRepository wires the sqlite implementations.
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{
		State:   NewStateSQLite(conn),
		Refuel:  NewRefuelSQLite(conn),
		Metrics: NewMetricsSQLite(conn),
	}
}

// InitDB opens the sqlite file and ensures the schema exists.
func InitDB(path string) (*sql.DB, error) {
	return db.Init(path)
}
