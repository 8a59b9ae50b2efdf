package service

import (
	"math"
	"testing"

	"fuelwatch/internal/config"
	"fuelwatch/internal/models"
)

func TestIdleClassifier_IsIdling(t *testing.T) {
	c := NewIdleClassifier()
	th := config.Defaults()

	cases := []struct {
		name   string
		sample models.TelemetrySample
		want   bool
	}{
		{"stopped engine running", models.TelemetrySample{SpeedMph: fptr(0), RPM: fptr(650)}, true},
		{"creeping", models.TelemetrySample{SpeedMph: fptr(1), RPM: fptr(650)}, true},
		{"moving", models.TelemetrySample{SpeedMph: fptr(12), RPM: fptr(1400)}, false},
		{"engine off", models.TelemetrySample{SpeedMph: fptr(0), RPM: fptr(0)}, false},
		{"no rpm reading", models.TelemetrySample{SpeedMph: fptr(0)}, false},
		{"no speed reading", models.TelemetrySample{RPM: fptr(650)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.isIdling(tc.sample, th); got != tc.want {
				t.Fatalf("isIdling = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIdleClassifier_SensorRateWins(t *testing.T) {
	c := NewIdleClassifier()
	th := config.Defaults()
	sample := models.TelemetrySample{
		SpeedMph:    fptr(0),
		RPM:         fptr(950), // high idle rpm, but the sensor reading takes precedence
		FuelRateLph: fptr(2.0),
	}

	got := c.classify(sample, th)
	if got.Method != models.MethodSensorFuelRate {
		t.Fatalf("expected sensor method, got %s", got.Method)
	}
	want := 2.0 * lphToGph
	if math.Abs(got.IdleGph-want) > 1e-9 {
		t.Fatalf("expected %.4f gph, got %.4f", want, got.IdleGph)
	}
}

func TestIdleClassifier_OutOfRangeSensorFallsBack(t *testing.T) {
	c := NewIdleClassifier()
	th := config.Defaults()
	sample := models.TelemetrySample{
		SpeedMph:    fptr(0),
		RPM:         fptr(650),
		FuelRateLph: fptr(9.5), // implausible at idle
	}

	got := c.classify(sample, th)
	if got.Method != models.MethodFallbackConsensus {
		t.Fatalf("expected fallback method, got %s", got.Method)
	}
	if got.IdleGph != th.IdleFallbackGph {
		t.Fatalf("expected %.2f gph, got %.2f", th.IdleFallbackGph, got.IdleGph)
	}
}

func TestIdleClassifier_HighIdleBumpsFallback(t *testing.T) {
	c := NewIdleClassifier()
	th := config.Defaults()
	sample := models.TelemetrySample{
		SpeedMph: fptr(0),
		RPM:      fptr(1100),
	}

	got := c.classify(sample, th)
	if got.Method != models.MethodFallbackConsensus {
		t.Fatalf("expected fallback method, got %s", got.Method)
	}
	if got.IdleGph != th.HighIdleFallback {
		t.Fatalf("expected high-idle %.2f gph, got %.2f", th.HighIdleFallback, got.IdleGph)
	}
}
