package service

import (
	"fuelwatch/internal/config"
	"fuelwatch/internal/models"
)

// MpgEngine accumulates distance and fuel while the vehicle moves and emits
// an EMA-smoothed MPG once a window completes. Stateless like the estimator;
// per-vehicle accumulators live with the pipeline state.
type MpgEngine struct{}

// NewMpgEngine returns the stateless engine.
func NewMpgEngine() *MpgEngine { return &MpgEngine{} }

// advance feeds one interval's odometer and smoothed-fuel movement into the
// accumulators. fuelDropPct must exclude refuel windows (the caller skips the
// interval that contained a snap). Under-threshold accumulation simply defers.
func (m *MpgEngine) advance(state *models.MpgState, distanceMi, fuelDropPct float64, t config.Thresholds) {
	if distanceMi > 0 {
		state.DistanceAccumMi += distanceMi
	}
	if fuelDropPct > 0 {
		state.FuelAccumGal += fuelDropPct / 100.0 * t.TankCapacityGal
	}

	if state.DistanceAccumMi < t.MpgMinDistanceMi || state.FuelAccumGal < t.MpgMinFuelGal {
		return
	}

	rawMpg := state.DistanceAccumMi / state.FuelAccumGal
	state.DistanceAccumMi = 0
	state.FuelAccumGal = 0

	// Out-of-range windows are odometer/sensor glitches; the window is
	// consumed but the EMA is untouched.
	if rawMpg < t.MpgPlausibleMin || rawMpg > t.MpgPlausibleMax {
		return
	}

	if state.WindowCount == 0 {
		state.MpgCurrent = rawMpg
	} else {
		state.MpgCurrent = t.MpgAlpha*rawMpg + (1-t.MpgAlpha)*state.MpgCurrent
	}
	state.WindowCount++
}
