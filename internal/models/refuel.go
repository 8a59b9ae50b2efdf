package models

import "time"

// Confidence grades for a detected refuel.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// RefuelEvent is a detected refuel, recorded once and immutable afterwards.
type RefuelEvent struct {
	EventID       string    `json:"event_id"`
	VehicleID     string    `json:"vehicle_id"`
	DetectedAt    time.Time `json:"detected_at"`
	FuelBeforePct float64   `json:"fuel_before_pct"`
	FuelAfterPct  float64   `json:"fuel_after_pct"`
	GallonsAdded  float64   `json:"gallons_added"`
	Confidence    string    `json:"confidence"` // high | medium | low
	GapMinutes    float64   `json:"gap_minutes"`
}

// Rejection reasons for fuel jumps that did not qualify as refuels.
const (
	RejectGapTooSmall     = "gap_too_small"
	RejectGapTooLarge     = "gap_too_large"
	RejectJumpTooSmall    = "jump_too_small"
	RejectGallonsTooSmall = "gallons_too_small"
	RejectTankSaturation  = "tank_saturation"
)

// RefuelRejection is the audit trail for jumps above the trust band that were
// not classified as refuels. Supports retrospective missed-refuel analysis.
type RefuelRejection struct {
	RejectionID string    `json:"rejection_id"`
	VehicleID   string    `json:"vehicle_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	JumpPct     float64   `json:"jump_pct"`
	Gallons     float64   `json:"gallons"`
	GapMinutes  float64   `json:"gap_minutes"`
	Reason      string    `json:"reason"`
}
