package models

import "time"

// Idle classification methods.
const (
	MethodSensorFuelRate    = "SENSOR_FUEL_RATE"
	MethodFallbackConsensus = "FALLBACK_CONSENSUS"
)

// IdleClassification is emitted per reading while the vehicle is stationary
// with the engine running. Not persisted as its own entity; it rides on the
// metrics row.
type IdleClassification struct {
	IdleGph float64 `json:"idle_gph"`
	Method  string  `json:"method"` // SENSOR_FUEL_RATE | FALLBACK_CONSENSUS
}

// MetricsRow is the append-only per-sample derived record consumed by the
// dashboard.
type MetricsRow struct {
	ID           int64     `json:"id"`
	VehicleID    string    `json:"vehicle_id"`
	CapturedAt   time.Time `json:"captured_at"`
	SmoothedPct  float64   `json:"smoothed_pct"`
	DriftPct     float64   `json:"drift_pct"`
	DriftWarning bool      `json:"drift_warning"`
	MpgCurrent   float64   `json:"mpg_current"`
	IsIdle       bool      `json:"is_idle"`
	IdleGph      float64   `json:"idle_gph,omitempty"`
	IdleMethod   string    `json:"idle_method,omitempty"`
}
