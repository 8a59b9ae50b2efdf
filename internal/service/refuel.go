package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"fuelwatch/internal/config"
	"fuelwatch/internal/logger"
	"fuelwatch/internal/models"
	"fuelwatch/internal/repository"
)

// qualifyJump applies the refuel decision rule to a positive fuel jump.
// Returns an empty string when the jump qualifies, otherwise the rejection
// reason. Order matters: gap artifacts first, then magnitude, then the
// tank-saturation rule.
func qualifyJump(jumpPct, gallons, gapMinutes, rawPct float64, t config.Thresholds) string {
	switch {
	case gapMinutes < t.MinGapMinutes:
		return models.RejectGapTooSmall
	case gapMinutes > t.MaxGapMinutes:
		return models.RejectGapTooLarge
	case rawPct > t.FullTankPct && gallons < t.FullTankMinGallons:
		// Near the sensor's saturation ceiling small jumps are noise, not fuel.
		return models.RejectTankSaturation
	case jumpPct < t.MinRefuelJumpPct:
		return models.RejectJumpTooSmall
	case gallons < t.MinRefuelGallons:
		return models.RejectGallonsTooSmall
	default:
		return ""
	}
}

// recordRefuel persists a detected refuel, deduplicating against any existing
// event for the vehicle inside the configured window. Returns true when a new
// event was stored.
func recordRefuel(ctx context.Context, repo repository.RefuelRepo, ev *models.RefuelEvent, t config.Thresholds, log *logger.Logger) (bool, error) {
	window := time.Duration(t.DedupWindowMinutes * float64(time.Minute))
	exists, err := repo.ExistsNear(ctx, ev.VehicleID, ev.DetectedAt, window)
	if err != nil {
		return false, err
	}
	if exists {
		log.Infow("refuel suppressed by dedup window",
			"vehicle", ev.VehicleID, "at", ev.DetectedAt, "gallons", ev.GallonsAdded)
		return false, nil
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if err := repo.Append(ctx, *ev); err != nil {
		return false, err
	}
	log.Infow("refuel detected",
		"vehicle", ev.VehicleID,
		"before_pct", ev.FuelBeforePct,
		"after_pct", ev.FuelAfterPct,
		"gallons", ev.GallonsAdded,
		"gap_min", ev.GapMinutes,
		"confidence", ev.Confidence)
	return true, nil
}

// RefuelLogService serves refuel history and the rejection audit.
type RefuelLogService struct {
	repo repository.RefuelRepo
}

// NewRefuelLogService wires the refuel repository.
func NewRefuelLogService(repo repository.RefuelRepo) *RefuelLogService {
	return &RefuelLogService{repo: repo}
}

var errInvalidTimeRange = errors.New("invalid time range: from must be <= to")

// List returns refuel events matching the filter, oldest first.
func (s *RefuelLogService) List(ctx context.Context, f RefuelFilter) ([]models.RefuelEvent, error) {
	from, to := normalizeToUTC(f.From), normalizeToUTC(f.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, errInvalidTimeRange
	}
	confidence := strings.ToLower(strings.TrimSpace(f.Confidence))
	switch confidence {
	case "", models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
	default:
		return nil, errors.New("invalid confidence filter: want high, medium or low")
	}
	return s.repo.List(ctx, strings.TrimSpace(f.VehicleID), from, to, confidence)
}

// ListRejections returns the missed-refuel audit trail, newest first.
func (s *RefuelLogService) ListRejections(ctx context.Context, vehicleID string) ([]models.RefuelRejection, error) {
	return s.repo.ListRejections(ctx, strings.TrimSpace(vehicleID))
}

// normalizeToUTC converts non-zero times to UTC, preserving zero values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
