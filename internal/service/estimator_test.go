package service

import (
	"testing"
	"time"

	"fuelwatch/internal/config"
	"fuelwatch/internal/models"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

var t0 = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func sampleAt(vehicleID string, at time.Time, fuelPct float64) models.TelemetrySample {
	return models.TelemetrySample{
		VehicleID:  vehicleID,
		CapturedAt: at,
		RawFuelPct: fptr(fuelPct),
	}
}

func seededState(smoothed float64, at time.Time) models.FuelEstimateState {
	return models.FuelEstimateState{
		VehicleID:    "truck-1",
		Seeded:       true,
		SmoothedPct:  smoothed,
		LastRawPct:   smoothed,
		LastUpdateAt: at,
	}
}

func TestEstimator_SeedsOnFirstReading(t *testing.T) {
	e := NewEstimator()
	th := config.Defaults()
	sample := sampleAt("truck-1", t0, 63.4)

	d := e.detect(models.FuelEstimateState{}, sample, th)
	if d.action != actionSeed {
		t.Fatalf("expected seed action, got %d", d.action)
	}

	var state models.FuelEstimateState
	e.commit(&state, sample, d)
	if state.SmoothedPct != 63.4 {
		t.Fatalf("expected smoothed=63.4, got %.2f", state.SmoothedPct)
	}
	if !state.Seeded {
		t.Fatalf("expected seeded filter")
	}
	if !state.LastUpdateAt.Equal(t0) {
		t.Fatalf("expected last update %v, got %v", t0, state.LastUpdateAt)
	}
}

func TestEstimator_FuelLessFirstSampleDoesNotPoisonSeed(t *testing.T) {
	e := NewEstimator()
	th := config.Defaults()

	// First sample carries rpm/speed only; it is valid and advances the
	// timestamp but must not count as filter initialization.
	var state models.FuelEstimateState
	first := models.TelemetrySample{
		VehicleID:  "truck-1",
		CapturedAt: t0,
		RPM:        fptr(900),
		SpeedMph:   fptr(0),
	}
	d := e.detect(state, first, th)
	if d.action != actionCarry {
		t.Fatalf("expected carry action, got %d", d.action)
	}
	e.commit(&state, first, d)
	if state.Seeded {
		t.Fatalf("fuel-less sample must not seed the filter")
	}

	// The first real fuel reading seeds; measured against the unseeded
	// zero it would otherwise register as a 60-gallon refuel.
	second := sampleAt("truck-1", t0.Add(10*time.Minute), 60)
	d = e.detect(state, second, th)
	if d.action != actionSeed {
		t.Fatalf("expected seed action on first fuel reading, got %d", d.action)
	}
	if d.refuel != nil {
		t.Fatalf("first fuel reading fabricated a refuel event: %+v", d.refuel)
	}
	e.commit(&state, second, d)
	if state.SmoothedPct != 60 {
		t.Fatalf("expected smoothed=60, got %.2f", state.SmoothedPct)
	}
	if !state.Seeded {
		t.Fatalf("expected seeded filter after first fuel reading")
	}
}

func TestEstimator_CarryOnMissingFuelAdvancesTimestamp(t *testing.T) {
	e := NewEstimator()
	th := config.Defaults()
	state := seededState(50, t0)
	sample := models.TelemetrySample{
		VehicleID:  "truck-1",
		CapturedAt: t0.Add(2 * time.Minute),
		SpeedMph:   fptr(40),
	}

	d := e.detect(state, sample, th)
	if d.action != actionCarry {
		t.Fatalf("expected carry action, got %d", d.action)
	}
	e.commit(&state, sample, d)
	if state.SmoothedPct != 50 {
		t.Fatalf("carry changed smoothed to %.2f", state.SmoothedPct)
	}
	if !state.LastUpdateAt.Equal(t0.Add(2 * time.Minute)) {
		t.Fatalf("carry did not advance timestamp: %v", state.LastUpdateAt)
	}
}

func TestEstimator_BlendsInsideTrustBand(t *testing.T) {
	e := NewEstimator()
	th := config.Defaults()
	state := seededState(60, t0)
	sample := sampleAt("truck-1", t0.Add(time.Minute), 56) // drift -4, band is 5

	d := e.detect(state, sample, th)
	if d.action != actionBlend {
		t.Fatalf("expected blend action, got %d", d.action)
	}
	if d.weight != th.BaseBlendWeight {
		t.Fatalf("expected base weight %.2f without GPS, got %.2f", th.BaseBlendWeight, d.weight)
	}
	e.commit(&state, sample, d)
	want := 60 + th.BaseBlendWeight*(-4)
	if diff := state.SmoothedPct - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected smoothed=%.3f, got %.3f", want, state.SmoothedPct)
	}
	if state.DriftWarning {
		t.Fatalf("blend must clear drift warning")
	}
}

func TestEstimator_BlendWeightFollowsGPSQuality(t *testing.T) {
	th := config.Defaults()

	good := models.TelemetrySample{RawFuelPct: fptr(50), HDOP: fptr(1.2)}
	if w := blendWeight(good, th); w != th.BaseBlendWeight*goodQualityGain {
		t.Fatalf("good fix: expected %.3f, got %.3f", th.BaseBlendWeight*goodQualityGain, w)
	}

	poor := models.TelemetrySample{RawFuelPct: fptr(50), Satellites: iptr(2)}
	if w := blendWeight(poor, th); w != th.BaseBlendWeight*poorQualityCut {
		t.Fatalf("poor fix: expected %.3f, got %.3f", th.BaseBlendWeight*poorQualityCut, w)
	}

	neutral := models.TelemetrySample{RawFuelPct: fptr(50), HDOP: fptr(3.0), Satellites: iptr(4)}
	if w := blendWeight(neutral, th); w != th.BaseBlendWeight {
		t.Fatalf("neutral fix: expected %.3f, got %.3f", th.BaseBlendWeight, w)
	}
}

func TestEstimator_LargeNegativeDriftHoldsAndWarns(t *testing.T) {
	e := NewEstimator()
	th := config.Defaults()
	state := seededState(70, t0)
	sample := sampleAt("truck-1", t0.Add(time.Minute), 20) // drift -50

	d := e.detect(state, sample, th)
	if d.action != actionHold {
		t.Fatalf("expected hold action, got %d", d.action)
	}
	if d.rejection != nil {
		t.Fatalf("negative drift must not produce a refuel rejection record")
	}
	e.commit(&state, sample, d)
	if state.SmoothedPct != 70 {
		t.Fatalf("hold changed smoothed to %.2f", state.SmoothedPct)
	}
	if !state.DriftWarning {
		t.Fatalf("expected drift warning on hold")
	}
	if state.LastRawPct != 20 {
		t.Fatalf("expected last raw 20, got %.2f", state.LastRawPct)
	}
}

func TestEstimator_QualifyingJumpSnapsWithCandidateEvent(t *testing.T) {
	e := NewEstimator()
	th := config.Defaults()
	state := seededState(25, t0)
	sample := sampleAt("truck-1", t0.Add(45*time.Minute), 85) // +60 pct, 60 gal

	d := e.detect(state, sample, th)
	if d.action != actionSnapRefuel {
		t.Fatalf("expected snap action, got %d", d.action)
	}
	if d.refuel == nil {
		t.Fatalf("expected candidate refuel event")
	}
	ev := d.refuel
	if ev.FuelBeforePct != 25 || ev.FuelAfterPct != 85 {
		t.Fatalf("event before/after wrong: %.1f -> %.1f", ev.FuelBeforePct, ev.FuelAfterPct)
	}
	if ev.GallonsAdded != 60 {
		t.Fatalf("expected 60 gallons at 100 gal capacity, got %.1f", ev.GallonsAdded)
	}
	if ev.Confidence != models.ConfidenceMedium {
		t.Fatalf("no GPS, reasonable gap: expected medium confidence, got %s", ev.Confidence)
	}

	e.commit(&state, sample, d)
	if state.SmoothedPct != 85 {
		t.Fatalf("snap must adopt raw, got %.2f", state.SmoothedPct)
	}
	if state.DriftWarning {
		t.Fatalf("snap must clear drift warning")
	}
}

func TestEstimator_NearFullSmallJumpRejectedAsSaturation(t *testing.T) {
	e := NewEstimator()
	th := config.Defaults()
	state := seededState(88, t0)
	sample := sampleAt("truck-1", t0.Add(30*time.Minute), 96) // +8 pct = 8 gal, above 95%

	d := e.detect(state, sample, th)
	if d.action != actionHold {
		t.Fatalf("expected hold action, got %d", d.action)
	}
	if d.refuel != nil {
		t.Fatalf("saturation jump must not produce a refuel event")
	}
	if d.rejection == nil {
		t.Fatalf("expected a rejection audit record")
	}
	if d.rejection.Reason != models.RejectTankSaturation {
		t.Fatalf("expected reason %s, got %s", models.RejectTankSaturation, d.rejection.Reason)
	}

	e.commit(&state, sample, d)
	if state.SmoothedPct != 88 {
		t.Fatalf("rejected jump must not move the estimate, got %.2f", state.SmoothedPct)
	}
	if !state.DriftWarning {
		t.Fatalf("expected drift warning on rejected jump")
	}
}

func TestEstimator_SmoothedStaysBounded(t *testing.T) {
	e := NewEstimator()
	th := config.Defaults()
	state := seededState(99, t0)
	// Repeated high readings inside the band must never push past 100.
	at := t0
	for i := 0; i < 50; i++ {
		at = at.Add(time.Minute)
		sample := models.TelemetrySample{
			VehicleID:  "truck-1",
			CapturedAt: at,
			RawFuelPct: fptr(100),
			HDOP:       fptr(1.0), // max blend gain
		}
		d := e.detect(state, sample, th)
		e.commit(&state, sample, d)
		if state.SmoothedPct < 0 || state.SmoothedPct > 100 {
			t.Fatalf("smoothed escaped [0,100]: %.4f", state.SmoothedPct)
		}
	}
}

func TestGradeConfidence(t *testing.T) {
	th := config.Defaults()
	goodFix := models.TelemetrySample{HDOP: fptr(1.5)}
	poorFix := models.TelemetrySample{Satellites: iptr(3)}
	noFix := models.TelemetrySample{}

	if c := gradeConfidence(goodFix, 60, th); c != models.ConfidenceHigh {
		t.Fatalf("good fix, short gap: expected high, got %s", c)
	}
	if c := gradeConfidence(poorFix, 60, th); c != models.ConfidenceLow {
		t.Fatalf("poor fix: expected low, got %s", c)
	}
	if c := gradeConfidence(goodFix, th.LongGapMinutes+1, th); c != models.ConfidenceLow {
		t.Fatalf("long gap overrides fix quality: expected low, got %s", c)
	}
	if c := gradeConfidence(noFix, 60, th); c != models.ConfidenceMedium {
		t.Fatalf("no fix data: expected medium, got %s", c)
	}
}
