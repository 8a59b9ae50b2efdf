package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"fuelwatch/internal/models"
	"fuelwatch/internal/repository"
)

const (
	defaultMetricsLimit = 500
	maxMetricsLimit     = 5000
)

// ErrVehicleNotFound is returned when no state exists for the vehicle.
var ErrVehicleNotFound = errors.New("vehicle not found")

// MonitoringService is the read side of the dashboard.
type MonitoringService struct {
	state   repository.StateRepo
	metrics repository.MetricsRepo
}

// NewMonitoringService wires the read repositories.
func NewMonitoringService(state repository.StateRepo, metrics repository.MetricsRepo) *MonitoringService {
	return &MonitoringService{state: state, metrics: metrics}
}

// GetVehicleState returns the persisted snapshot for one vehicle.
func (s *MonitoringService) GetVehicleState(ctx context.Context, vehicleID string) (models.VehicleState, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return models.VehicleState{}, errors.New("vehicle id is required")
	}
	st, err := s.state.Load(ctx, vehicleID)
	if err != nil {
		return models.VehicleState{}, err
	}
	if st.VehicleID == "" {
		return models.VehicleState{}, ErrVehicleNotFound
	}
	return st, nil
}

// ListVehicles returns the snapshot of every known vehicle.
func (s *MonitoringService) ListVehicles(ctx context.Context) ([]models.VehicleState, error) {
	return s.state.List(ctx)
}

// ListMetrics returns derived metrics rows for a vehicle, newest first,
// capped to a sane limit.
func (s *MonitoringService) ListMetrics(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.MetricsRow, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return nil, errors.New("vehicle id is required")
	}
	from, to = normalizeToUTC(from), normalizeToUTC(to)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, errInvalidTimeRange
	}
	if limit <= 0 {
		limit = defaultMetricsLimit
	}
	if limit > maxMetricsLimit {
		limit = maxMetricsLimit
	}
	return s.metrics.List(ctx, vehicleID, from, to, limit)
}
