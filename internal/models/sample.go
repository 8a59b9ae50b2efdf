package models

import "time"

// TelemetrySample is one normalized sensor reading. All readings except the
// vehicle id and timestamp are optional; nil means the provider didn't send it.
type TelemetrySample struct {
	VehicleID  string    `json:"vehicle_id"`
	CapturedAt time.Time `json:"captured_at"`

	RawFuelPct    *float64 `json:"raw_fuel_pct,omitempty"` // 0–100
	OdometerMi    *float64 `json:"odometer_mi,omitempty"`
	EngineHours   *float64 `json:"engine_hours,omitempty"`
	RPM           *float64 `json:"rpm,omitempty"`
	SpeedMph      *float64 `json:"speed_mph,omitempty"`
	EngineLoadPct *float64 `json:"engine_load_pct,omitempty"`
	FuelRateLph   *float64 `json:"fuel_rate_lph,omitempty"` // provider reports litres/hour

	// GPS quality signals, used to weight the fuel filter.
	HDOP       *float64 `json:"hdop,omitempty"`
	Satellites *int     `json:"satellites,omitempty"`

	// OutlierFields names readings dropped for being physically implausible
	// (e.g. fuel > 100%). The rest of the sample is still processed.
	OutlierFields []string `json:"outlier_fields,omitempty"`
}

// HasFuel reports whether the sample carries a usable fuel percentage.
func (s TelemetrySample) HasFuel() bool { return s.RawFuelPct != nil }
