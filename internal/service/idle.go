package service

import (
	"fuelwatch/internal/config"
	"fuelwatch/internal/models"
)

const lphToGph = 0.264172 // litres/hour to US gallons/hour

// IdleClassifier estimates fuel burn while stationary with the engine
// running. Sensor-first: a direct fuel-rate reading inside the plausible idle
// range always wins over the consensus fallback.
type IdleClassifier struct{}

// NewIdleClassifier returns the stateless classifier.
func NewIdleClassifier() *IdleClassifier { return &IdleClassifier{} }

// isIdling reports engine-on, vehicle-stationary. Missing speed or rpm means
// not idling; an absent rpm cannot prove the engine runs.
func (c *IdleClassifier) isIdling(sample models.TelemetrySample, t config.Thresholds) bool {
	if sample.SpeedMph == nil || sample.RPM == nil {
		return false
	}
	return *sample.SpeedMph <= t.IdleSpeedMaxMph && *sample.RPM >= t.IdleRpmMin
}

// classify returns the idle consumption estimate for a stationary sample.
func (c *IdleClassifier) classify(sample models.TelemetrySample, t config.Thresholds) models.IdleClassification {
	if sample.FuelRateLph != nil {
		lph := *sample.FuelRateLph
		if lph >= t.IdleRateMinLph && lph <= t.IdleRateMaxLph {
			return models.IdleClassification{
				IdleGph: lph * lphToGph,
				Method:  models.MethodSensorFuelRate,
			}
		}
	}

	// Consensus fallback: fixed figure, bumped for high idle (PTO, cold
	// start) when rpm says so.
	gph := t.IdleFallbackGph
	if sample.RPM != nil && *sample.RPM >= t.HighIdleRpm {
		gph = t.HighIdleFallback
	}
	return models.IdleClassification{
		IdleGph: gph,
		Method:  models.MethodFallbackConsensus,
	}
}
