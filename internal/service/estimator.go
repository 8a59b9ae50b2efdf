package service

import (
	"fuelwatch/internal/config"
	"fuelwatch/internal/models"
)

// Commit-phase actions. The detect phase picks exactly one; commit applies it.
// Detection is read-only over the prior state and the incoming sample, so no
// snap or reset can erase the drift evidence before the refuel decision is
// made for that sample.
type fuelAction int

const (
	actionCarry fuelAction = iota // no usable fuel reading; state carried forward
	actionSeed                    // first reading for this vehicle
	actionBlend                   // drift inside the trust band
	actionSnapRefuel              // qualifying refuel jump; snap to raw
	actionHold                    // anomalous drift; keep prior estimate, warn
)

// fuelDecision is the complete output of the detect phase.
type fuelDecision struct {
	action     fuelAction
	drift      float64
	weight     float64 // blend weight, only for actionBlend
	gapMinutes float64
	refuel     *models.RefuelEvent     // candidate, only for actionSnapRefuel
	rejection  *models.RefuelRejection // audit record, only for actionHold on a positive jump
}

// Blend-weight clamp. The filter must keep moving even on junk GPS, and must
// never fully replace the estimate inside the trust band.
const (
	minBlendWeight = 0.05
	maxBlendWeight = 0.90

	goodQualityGain = 1.5
	poorQualityCut  = 0.5

	goodHdopMax = 2.0
	poorHdopMin = 5.0
	goodSatsMin = 5
	poorSatsMax = 3
)

// Estimator holds the pure fuel-filter logic. It owns no state; the pipeline
// passes the per-vehicle state in and applies the decision under the
// vehicle's shard.
type Estimator struct{}

// NewEstimator returns the stateless filter.
func NewEstimator() *Estimator { return &Estimator{} }

// detect is phase one: read-only classification of the incoming sample
// against the prior state. It never mutates state.
func (e *Estimator) detect(state models.FuelEstimateState, sample models.TelemetrySample, t config.Thresholds) fuelDecision {
	if !sample.HasFuel() {
		return fuelDecision{action: actionCarry}
	}
	raw := *sample.RawFuelPct

	// Seeding keys off the first fuel reading, not the first sample: a
	// fuel-less sample may have stamped LastUpdateAt already, and a drift
	// measured against an unseeded zero would read as a giant jump.
	if !state.Seeded {
		return fuelDecision{action: actionSeed, drift: 0}
	}

	drift := raw - state.SmoothedPct
	gapMinutes := sample.CapturedAt.Sub(state.LastUpdateAt).Minutes()

	if drift >= -t.TrustBandPct && drift <= t.TrustBandPct {
		return fuelDecision{
			action:     actionBlend,
			drift:      drift,
			weight:     blendWeight(sample, t),
			gapMinutes: gapMinutes,
		}
	}

	if drift > t.TrustBandPct {
		// Positive jump: refuel candidacy is decided here, before any snap.
		gallons := drift / 100.0 * t.TankCapacityGal
		if reason := qualifyJump(drift, gallons, gapMinutes, raw, t); reason != "" {
			return fuelDecision{
				action:     actionHold,
				drift:      drift,
				gapMinutes: gapMinutes,
				rejection: &models.RefuelRejection{
					VehicleID:  sample.VehicleID,
					OccurredAt: sample.CapturedAt,
					JumpPct:    drift,
					Gallons:    gallons,
					GapMinutes: gapMinutes,
					Reason:     reason,
				},
			}
		}
		return fuelDecision{
			action:     actionSnapRefuel,
			drift:      drift,
			gapMinutes: gapMinutes,
			refuel: &models.RefuelEvent{
				VehicleID:     sample.VehicleID,
				DetectedAt:    sample.CapturedAt,
				FuelBeforePct: state.SmoothedPct,
				FuelAfterPct:  raw,
				GallonsAdded:  gallons,
				Confidence:    gradeConfidence(sample, gapMinutes, t),
				GapMinutes:    gapMinutes,
			},
		}
	}

	// Large negative drift: a single bad reading or an ECU outage must not
	// drag the estimate down. Keep the prior value and warn.
	return fuelDecision{action: actionHold, drift: drift, gapMinutes: gapMinutes}
}

// commit is phase two: apply the decision to the state. Runs only after
// detect has completed for the same sample.
func (e *Estimator) commit(state *models.FuelEstimateState, sample models.TelemetrySample, d fuelDecision) {
	if d.action == actionCarry {
		// Missing fuel reading is not an error; the prior estimate stands
		// and the timestamp still advances for the ordering guard.
		state.VehicleID = sample.VehicleID
		state.LastUpdateAt = sample.CapturedAt
		return
	}

	raw := *sample.RawFuelPct
	state.VehicleID = sample.VehicleID
	state.LastRawPct = raw
	state.DriftPct = d.drift
	state.LastUpdateAt = sample.CapturedAt

	switch d.action {
	case actionSeed:
		state.Seeded = true
		state.SmoothedPct = clampPct(raw)
		state.DriftWarning = false
	case actionBlend:
		state.SmoothedPct = clampPct(state.SmoothedPct + d.weight*d.drift)
		state.DriftWarning = false
	case actionSnapRefuel:
		// Refuel is ground truth; the raw value replaces the estimate.
		state.SmoothedPct = clampPct(raw)
		state.DriftWarning = false
	case actionHold:
		state.DriftWarning = true
	}
}

// blendWeight scales the base filter gain by GPS quality when available.
func blendWeight(sample models.TelemetrySample, t config.Thresholds) float64 {
	w := t.BaseBlendWeight
	switch {
	case sample.HDOP != nil && *sample.HDOP <= goodHdopMax,
		sample.Satellites != nil && *sample.Satellites >= goodSatsMin:
		w *= goodQualityGain
	case sample.HDOP != nil && *sample.HDOP >= poorHdopMin,
		sample.Satellites != nil && *sample.Satellites <= poorSatsMax:
		w *= poorQualityCut
	}
	if w < minBlendWeight {
		w = minBlendWeight
	}
	if w > maxBlendWeight {
		w = maxBlendWeight
	}
	return w
}

// gradeConfidence ranks how much downstream consumers should trust a
// detection: good GPS fix within a reasonable gap grades high, a stale or
// poorly located reading grades low, everything else medium.
func gradeConfidence(sample models.TelemetrySample, gapMinutes float64, t config.Thresholds) string {
	goodFix := (sample.HDOP != nil && *sample.HDOP <= goodHdopMax) ||
		(sample.Satellites != nil && *sample.Satellites >= goodSatsMin)
	poorFix := (sample.HDOP != nil && *sample.HDOP >= poorHdopMin) ||
		(sample.Satellites != nil && *sample.Satellites <= poorSatsMax)

	switch {
	case gapMinutes > t.LongGapMinutes || poorFix:
		return models.ConfidenceLow
	case goodFix:
		return models.ConfidenceHigh
	default:
		return models.ConfidenceMedium
	}
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
