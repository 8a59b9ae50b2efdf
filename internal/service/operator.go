package service

import (
	"context"
	"errors"
	"strings"

	"fuelwatch/internal/logger"
	"fuelwatch/internal/repository"
)

// stateDropper lets the operator service evict in-memory pipeline state
// without depending on the concrete pipeline.
type stateDropper interface {
	dropSlot(vehicleID string)
}

// OperatorService implements the explicit state-clear actions. These are the
// only paths that destroy per-vehicle state; nothing in the pipeline resets
// automatically.
type OperatorService struct {
	state   repository.StateRepo
	dropper stateDropper
	log     *logger.Logger
}

// NewOperatorService wires the state repository and the pipeline eviction hook.
func NewOperatorService(state repository.StateRepo, dropper stateDropper, log *logger.Logger) *OperatorService {
	return &OperatorService{state: state, dropper: dropper, log: log}
}

// ClearFuelState deletes the vehicle's persisted snapshot and evicts the
// in-memory slot; the next sample re-seeds the filter from raw.
func (s *OperatorService) ClearFuelState(ctx context.Context, vehicleID string) error {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return errors.New("vehicle id is required")
	}
	if err := s.state.Delete(ctx, vehicleID); err != nil {
		return err
	}
	s.dropper.dropSlot(vehicleID)
	s.log.Infow("fuel state cleared by operator", "vehicle", vehicleID)
	return nil
}

// ClearMpgState zeroes the MPG accumulators and EMA for the vehicle while
// keeping the fuel filter state.
func (s *OperatorService) ClearMpgState(ctx context.Context, vehicleID string) error {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return errors.New("vehicle id is required")
	}
	if err := s.state.ResetMpg(ctx, vehicleID); err != nil {
		return err
	}
	s.dropper.dropSlot(vehicleID) // slot reloads with zeroed MPG on next sample
	s.log.Infow("mpg state cleared by operator", "vehicle", vehicleID)
	return nil
}
