package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Thresholds collects every tunable of the estimation pipeline in one place.
// The diagnostics history shows these get re-tuned often, so all of them load
// from config and hot-reload without restarting the pipeline.
type Thresholds struct {
	// Fuel estimator
	TrustBandPct    float64 `mapstructure:"trust_band_pct"`    // blend vs. anomaly boundary
	BaseBlendWeight float64 `mapstructure:"base_blend_weight"` // filter gain at neutral sensor quality
	TankCapacityGal float64 `mapstructure:"tank_capacity_gal"` // fleet-wide default

	// Refuel detector
	MinRefuelJumpPct   float64 `mapstructure:"min_refuel_jump_pct"`
	MinRefuelGallons   float64 `mapstructure:"min_refuel_gallons"`
	MinGapMinutes      float64 `mapstructure:"min_gap_minutes"`
	MaxGapMinutes      float64 `mapstructure:"max_gap_minutes"`
	DedupWindowMinutes float64 `mapstructure:"dedup_window_minutes"`
	LongGapMinutes     float64 `mapstructure:"long_gap_minutes"` // beyond this, confidence drops to low
	FullTankPct        float64 `mapstructure:"full_tank_pct"`
	FullTankMinGallons float64 `mapstructure:"full_tank_min_gallons"`

	// MPG engine
	MpgAlpha         float64 `mapstructure:"mpg_alpha"`
	MpgMinDistanceMi float64 `mapstructure:"mpg_min_distance_mi"`
	MpgMinFuelGal    float64 `mapstructure:"mpg_min_fuel_gal"`
	MpgPlausibleMin  float64 `mapstructure:"mpg_plausible_min"`
	MpgPlausibleMax  float64 `mapstructure:"mpg_plausible_max"`

	// Idle classifier
	IdleSpeedMaxMph  float64 `mapstructure:"idle_speed_max_mph"`
	IdleRpmMin       float64 `mapstructure:"idle_rpm_min"`
	IdleRateMinLph   float64 `mapstructure:"idle_rate_min_lph"`
	IdleRateMaxLph   float64 `mapstructure:"idle_rate_max_lph"`
	IdleFallbackGph  float64 `mapstructure:"idle_fallback_gph"`
	HighIdleRpm      float64 `mapstructure:"high_idle_rpm"`
	HighIdleFallback float64 `mapstructure:"high_idle_fallback_gph"`
}

// Defaults returns the starting thresholds. The exact production values were
// never pinned down (they changed between tuning passes), so these are the
// documented starting points, not constants.
func Defaults() Thresholds {
	return Thresholds{
		TrustBandPct:    5.0,
		BaseBlendWeight: 0.30,
		TankCapacityGal: 100.0,

		MinRefuelJumpPct:   10.0,
		MinRefuelGallons:   5.0,
		MinGapMinutes:      5.0,
		MaxGapMinutes:      5760.0, // 96 h
		DedupWindowMinutes: 30.0,
		LongGapMinutes:     1440.0, // 24 h
		FullTankPct:        95.0,
		FullTankMinGallons: 15.0,

		MpgAlpha:         0.35,
		MpgMinDistanceMi: 20.0,
		MpgMinFuelGal:    2.5,
		MpgPlausibleMin:  3.8,
		MpgPlausibleMax:  9.0,

		IdleSpeedMaxMph:  1.0,
		IdleRpmMin:       400.0,
		IdleRateMinLph:   0.4,
		IdleRateMaxLph:   3.0,
		IdleFallbackGph:  0.66,
		HighIdleRpm:      900.0,
		HighIdleFallback: 0.80,
	}
}

// Validate rejects threshold combinations that would wedge the pipeline.
func (t Thresholds) Validate() error {
	if t.TrustBandPct <= 0 {
		return fmt.Errorf("trust_band_pct must be > 0, got %v", t.TrustBandPct)
	}
	if t.BaseBlendWeight <= 0 || t.BaseBlendWeight > 1 {
		return fmt.Errorf("base_blend_weight must be in (0, 1], got %v", t.BaseBlendWeight)
	}
	if t.TankCapacityGal <= 0 {
		return fmt.Errorf("tank_capacity_gal must be > 0, got %v", t.TankCapacityGal)
	}
	if t.MinGapMinutes >= t.MaxGapMinutes {
		return fmt.Errorf("min_gap_minutes %v must be below max_gap_minutes %v", t.MinGapMinutes, t.MaxGapMinutes)
	}
	if t.MpgAlpha <= 0 || t.MpgAlpha > 1 {
		return fmt.Errorf("mpg_alpha must be in (0, 1], got %v", t.MpgAlpha)
	}
	if t.MpgPlausibleMin >= t.MpgPlausibleMax {
		return fmt.Errorf("mpg_plausible_min %v must be below mpg_plausible_max %v", t.MpgPlausibleMin, t.MpgPlausibleMax)
	}
	if t.IdleRateMinLph >= t.IdleRateMaxLph {
		return fmt.Errorf("idle_rate_min_lph %v must be below idle_rate_max_lph %v", t.IdleRateMinLph, t.IdleRateMaxLph)
	}
	return nil
}

// FromViper reads the thresholds sub-tree, starting from Defaults so a partial
// config file only overrides what it names.
func FromViper(v *viper.Viper) (Thresholds, error) {
	t := Defaults()
	if sub := v.Sub("thresholds"); sub != nil {
		if err := sub.Unmarshal(&t); err != nil {
			return Thresholds{}, fmt.Errorf("unmarshal thresholds: %w", err)
		}
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}
