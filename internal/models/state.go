package models

import "time"

// FuelEstimateState is the per-vehicle filter state. Owned exclusively by the
// fuel estimator; cleared only by explicit operator action.
type FuelEstimateState struct {
	VehicleID    string    `json:"vehicle_id"`
	Seeded       bool      `json:"seeded"` // a fuel reading has initialized the filter
	SmoothedPct  float64   `json:"smoothed_pct"` // always within [0, 100]
	LastRawPct   float64   `json:"last_raw_pct"`
	DriftPct     float64   `json:"drift_pct"` // last raw minus smoothed, signed
	DriftWarning bool      `json:"drift_warning"`
	LastUpdateAt time.Time `json:"last_update_at"`
}

// MpgState is the per-vehicle MPG accumulator and its EMA output.
type MpgState struct {
	VehicleID       string  `json:"vehicle_id"`
	DistanceAccumMi float64 `json:"distance_accum_mi"`
	FuelAccumGal    float64 `json:"fuel_accum_gal"`
	MpgCurrent      float64 `json:"mpg_current"` // 0 until the first window completes
	WindowCount     int     `json:"window_count"`
}

// VehicleState is the persisted per-vehicle snapshot surfaced to dashboards.
type VehicleState struct {
	FuelEstimateState
	Mpg       MpgState  `json:"mpg"`
	UpdatedAt time.Time `json:"updated_at"`
}
