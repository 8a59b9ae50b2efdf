package service

import (
	"context"
	"time"

	"fuelwatch/internal/config"
	"fuelwatch/internal/logger"
	"fuelwatch/internal/models"
	"fuelwatch/internal/repository"
)

// Pipeline runs samples through estimation, detection and classification.
// Submit routes asynchronously through the shard workers; Process is the
// synchronous path used by replay and tests.
type Pipeline interface {
	Run(ctx context.Context)
	Submit(sample models.TelemetrySample) bool
	Process(ctx context.Context, sample models.TelemetrySample) error
}

// Monitoring exposes the read-only dashboard surface.
type Monitoring interface {
	GetVehicleState(ctx context.Context, vehicleID string) (models.VehicleState, error)
	ListVehicles(ctx context.Context) ([]models.VehicleState, error)
	ListMetrics(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.MetricsRow, error)
}

// RefuelLog exposes refuel history and the missed-refuel audit trail.
type RefuelLog interface {
	List(ctx context.Context, f RefuelFilter) ([]models.RefuelEvent, error)
	ListRejections(ctx context.Context, vehicleID string) ([]models.RefuelRejection, error)
}

// Operator exposes explicit state-reset actions. Nothing resets automatically.
type Operator interface {
	ClearFuelState(ctx context.Context, vehicleID string) error
	ClearMpgState(ctx context.Context, vehicleID string) error
}

// RefuelFilter narrows refuel history queries.
type RefuelFilter struct {
	VehicleID  string
	From       time.Time // inclusive; zero means unbounded
	To         time.Time // inclusive; zero means unbounded
	Confidence string    // "", high, medium, low
}

// Service aggregates the sub-services behind one injection point.
type Service struct {
	Pipeline
	Monitoring
	RefuelLog
	Operator
}

// NewService wires repositories and config into the concrete services.
func NewService(repos *repository.Repository, cfg *config.Store, log *logger.Logger) *Service {
	pipeline := NewPipelineService(repos, cfg, log)
	return &Service{
		Pipeline:   pipeline,
		Monitoring: NewMonitoringService(repos.State, repos.Metrics),
		RefuelLog:  NewRefuelLogService(repos.Refuel),
		Operator:   NewOperatorService(repos.State, pipeline, log),
	}
}
