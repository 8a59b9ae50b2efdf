package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fuelwatch/internal/models"
)

// MalformedSampleError marks a sample that cannot enter the pipeline at all:
// no vehicle identity, no timestamp, or no usable engine/fuel signal. Callers
// skip and log; a malformed sample never propagates downstream.
type MalformedSampleError struct {
	VehicleID string
	Reason    string
}

func (e *MalformedSampleError) Error() string {
	return fmt.Sprintf("malformed sample (vehicle %q): %s", e.VehicleID, e.Reason)
}

// Canonical field keys.
const (
	fieldFuelPct     = "fuel_pct"
	fieldOdometerMi  = "odometer_mi"
	fieldEngineHours = "engine_hours"
	fieldRPM         = "rpm"
	fieldSpeedMph    = "speed_mph"
	fieldEngineLoad  = "engine_load_pct"
	fieldFuelRateLph = "fuel_rate_lph"
	fieldHDOP        = "hdop"
	fieldSatellites  = "satellites"
)

// paramAliases maps provider parameter names onto canonical fields. Providers
// rename these between firmware versions; unknown names are dropped silently.
var paramAliases = map[string]string{
	"fuel_pct":      fieldFuelPct,
	"fuel_lvl":      fieldFuelPct,
	"fuel_level":    fieldFuelPct,
	"fuel_level_p":  fieldFuelPct,
	"lls_level":     fieldFuelPct,
	"odometer":      fieldOdometerMi,
	"odometer_mi":   fieldOdometerMi,
	"mileage":       fieldOdometerMi,
	"total_mileage": fieldOdometerMi,
	"engine_hours":  fieldEngineHours,
	"eng_hours":     fieldEngineHours,
	"motohours":     fieldEngineHours,
	"rpm":           fieldRPM,
	"engine_rpm":    fieldRPM,
	"eng_rpm":       fieldRPM,
	"speed":         fieldSpeedMph,
	"speed_mph":     fieldSpeedMph,
	"gps_speed":     fieldSpeedMph,
	"engine_load":   fieldEngineLoad,
	"eng_load":      fieldEngineLoad,
	"load_pct":      fieldEngineLoad,
	"fuel_rate":     fieldFuelRateLph,
	"fuel_rate_lph": fieldFuelRateLph,
	"inst_fuel":     fieldFuelRateLph,
	"hdop":          fieldHDOP,
	"gps_hdop":      fieldHDOP,
	"sats":          fieldSatellites,
	"satellites":    fieldSatellites,
	"sat_count":     fieldSatellites,
}

// Adapter normalizes provider parameter maps into telemetry samples.
type Adapter struct{}

// NewAdapter returns a ready adapter. Kept as a constructor so the alias table
// can grow per-provider options later without touching call sites.
func NewAdapter() *Adapter { return &Adapter{} }

// Normalize builds a TelemetrySample from a provider parameter map.
// Unmapped parameters are dropped. Readings outside physical bounds are
// dropped field-by-field and noted in OutlierFields; the sample still flows.
func (a *Adapter) Normalize(vehicleID string, capturedAt time.Time, params map[string]any) (models.TelemetrySample, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return models.TelemetrySample{}, &MalformedSampleError{Reason: "missing vehicle id"}
	}
	if capturedAt.IsZero() {
		return models.TelemetrySample{}, &MalformedSampleError{VehicleID: vehicleID, Reason: "missing timestamp"}
	}

	s := models.TelemetrySample{
		VehicleID:  vehicleID,
		CapturedAt: capturedAt.UTC(),
	}

	for name, raw := range params {
		canonical, ok := paramAliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		val, ok := toFloat(raw)
		if !ok {
			continue
		}
		a.setField(&s, canonical, val)
	}

	if !hasUsableSignal(s) {
		return models.TelemetrySample{}, &MalformedSampleError{VehicleID: vehicleID, Reason: "no usable engine/fuel signal"}
	}
	return s, nil
}

func (a *Adapter) setField(s *models.TelemetrySample, field string, val float64) {
	switch field {
	case fieldFuelPct:
		if val < 0 || val > 100 {
			s.OutlierFields = append(s.OutlierFields, fieldFuelPct)
			return
		}
		s.RawFuelPct = ptr(val)
	case fieldOdometerMi:
		if val < 0 {
			s.OutlierFields = append(s.OutlierFields, fieldOdometerMi)
			return
		}
		s.OdometerMi = ptr(val)
	case fieldEngineHours:
		if val < 0 {
			s.OutlierFields = append(s.OutlierFields, fieldEngineHours)
			return
		}
		s.EngineHours = ptr(val)
	case fieldRPM:
		if val < 0 || val > 10000 {
			s.OutlierFields = append(s.OutlierFields, fieldRPM)
			return
		}
		s.RPM = ptr(val)
	case fieldSpeedMph:
		if val < 0 || val > 150 {
			s.OutlierFields = append(s.OutlierFields, fieldSpeedMph)
			return
		}
		s.SpeedMph = ptr(val)
	case fieldEngineLoad:
		if val < 0 || val > 100 {
			s.OutlierFields = append(s.OutlierFields, fieldEngineLoad)
			return
		}
		s.EngineLoadPct = ptr(val)
	case fieldFuelRateLph:
		if val < 0 {
			s.OutlierFields = append(s.OutlierFields, fieldFuelRateLph)
			return
		}
		s.FuelRateLph = ptr(val)
	case fieldHDOP:
		if val < 0 {
			return
		}
		s.HDOP = ptr(val)
	case fieldSatellites:
		if val < 0 {
			return
		}
		n := int(val)
		s.Satellites = &n
	}
}

// hasUsableSignal requires at least one engine or fuel reading; a sample with
// only GPS quality fields tells the estimator nothing.
func hasUsableSignal(s models.TelemetrySample) bool {
	return s.RawFuelPct != nil || s.RPM != nil || s.SpeedMph != nil ||
		s.OdometerMi != nil || s.FuelRateLph != nil || s.EngineHours != nil
}

// toFloat accepts the value shapes providers actually send: numbers, numeric
// strings, and booleans.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func ptr(f float64) *float64 { return &f }
