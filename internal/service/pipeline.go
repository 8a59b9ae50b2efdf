package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fuelwatch/internal/config"
	"fuelwatch/internal/logger"
	"fuelwatch/internal/models"
	"fuelwatch/internal/repository"
)

// StaleSampleError marks a sample older than the vehicle's last processed
// timestamp. Expected under at-least-once delivery; logged as a warning and
// dropped, never reconciled.
type StaleSampleError struct {
	VehicleID  string
	CapturedAt time.Time
	LastUpdate time.Time
}

func (e *StaleSampleError) Error() string {
	return fmt.Sprintf("stale sample for %s: captured %s precedes last update %s",
		e.VehicleID, e.CapturedAt.Format(time.RFC3339), e.LastUpdate.Format(time.RFC3339))
}

const (
	defaultShardCount = 8
	shardQueueDepth   = 256
)

// vehicleSlot is everything the pipeline tracks per vehicle. A slot is only
// ever touched by the shard that owns the vehicle id, so no per-slot lock.
type vehicleSlot struct {
	fuel         models.FuelEstimateState
	mpg          models.MpgState
	lastOdometer *float64
	loaded       bool // persisted snapshot pulled in
}

// PipelineService owns all per-vehicle state and the shard workers that
// serialize samples per vehicle while processing vehicles in parallel.
type PipelineService struct {
	repos *repository.Repository
	cfg   *config.Store
	log   *logger.Logger

	estimator  *Estimator
	mpgEngine  *MpgEngine
	classifier *IdleClassifier

	mu    sync.Mutex
	slots map[string]*vehicleSlot

	shards []chan models.TelemetrySample
	wg     sync.WaitGroup

	// writeFailures counts consecutive persistence failures across all
	// shards; the serve loop escalates when it passes the fatal threshold.
	writeFailures atomic.Int64
}

// NewPipelineService builds the pipeline. Run must be called before Submit.
func NewPipelineService(repos *repository.Repository, cfg *config.Store, log *logger.Logger) *PipelineService {
	p := &PipelineService{
		repos:      repos,
		cfg:        cfg,
		log:        log,
		estimator:  NewEstimator(),
		mpgEngine:  NewMpgEngine(),
		classifier: NewIdleClassifier(),
		slots:      make(map[string]*vehicleSlot),
		shards:     make([]chan models.TelemetrySample, defaultShardCount),
	}
	for i := range p.shards {
		p.shards[i] = make(chan models.TelemetrySample, shardQueueDepth)
	}
	return p
}

// Run starts the shard workers and blocks until ctx is canceled.
func (p *PipelineService) Run(ctx context.Context) {
	for i, ch := range p.shards {
		p.wg.Add(1)
		go p.worker(ctx, i, ch)
	}
	<-ctx.Done()
	p.wg.Wait()
}

func (p *PipelineService) worker(ctx context.Context, shard int, ch <-chan models.TelemetrySample) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-ch:
			if err := p.Process(ctx, sample); err != nil {
				// Per-sample errors are local; the shard keeps going.
				p.log.Warnw("sample dropped", "shard", shard, "vehicle", sample.VehicleID, "err", err)
			}
		}
	}
}

// Submit routes a sample to its vehicle's shard. Same vehicle always lands on
// the same shard, which serializes its updates. Returns false when the shard
// queue is full (caller decides whether to retry or drop).
func (p *PipelineService) Submit(sample models.TelemetrySample) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sample.VehicleID))
	shard := int(h.Sum32()) % len(p.shards)
	select {
	case p.shards[shard] <- sample:
		return true
	default:
		p.log.Warnw("shard queue full, sample dropped", "shard", shard, "vehicle", sample.VehicleID)
		return false
	}
}

// WriteFailures reports consecutive persistence failures. The serve loop
// treats a sustained run as loss of the storage collaborator and shuts down.
func (p *PipelineService) WriteFailures() int64 { return p.writeFailures.Load() }

// Process runs one sample through the full chain: ordering guard, fuel
// detect/commit, refuel persistence, MPG, idle, metrics write, snapshot.
func (p *PipelineService) Process(ctx context.Context, sample models.TelemetrySample) error {
	t := p.cfg.Current()
	slot := p.slot(ctx, sample.VehicleID)

	if len(sample.OutlierFields) > 0 {
		p.log.Warnw("sensor outlier fields excluded", "vehicle", sample.VehicleID, "fields", sample.OutlierFields)
	}

	// Ordering guard: state must never see time run backwards.
	if !slot.fuel.LastUpdateAt.IsZero() && sample.CapturedAt.Before(slot.fuel.LastUpdateAt) {
		return &StaleSampleError{
			VehicleID:  sample.VehicleID,
			CapturedAt: sample.CapturedAt,
			LastUpdate: slot.fuel.LastUpdateAt,
		}
	}

	prevSmoothed := slot.fuel.SmoothedPct

	// Phase 1: detect (read-only). Phase 2: commit. The refuel decision is
	// part of the detect output, so no reset can destroy the evidence first.
	decision := p.estimator.detect(slot.fuel, sample, t)
	p.estimator.commit(&slot.fuel, sample, decision)

	if decision.refuel != nil {
		if _, err := recordRefuel(ctx, p.repos.Refuel, decision.refuel, t, p.log); err != nil {
			p.noteWriteFailure("refuel event", sample.VehicleID, err)
		}
	}
	if decision.rejection != nil {
		rej := decision.rejection
		rej.RejectionID = uuid.NewString()
		p.log.Warnw("fuel jump rejected",
			"vehicle", rej.VehicleID, "jump_pct", rej.JumpPct, "gap_min", rej.GapMinutes, "reason", rej.Reason)
		if err := p.repos.Refuel.AppendRejection(ctx, *rej); err != nil {
			p.noteWriteFailure("refuel rejection", sample.VehicleID, err)
		}
	}

	// Movement split: MPG while moving, idle classification while stationary.
	var idle *models.IdleClassification
	moving := sample.SpeedMph != nil && *sample.SpeedMph > t.IdleSpeedMaxMph
	switch {
	case moving:
		p.advanceMpg(slot, sample, prevSmoothed, decision, t)
	case p.classifier.isIdling(sample, t):
		cls := p.classifier.classify(sample, t)
		idle = &cls
	}
	if sample.OdometerMi != nil {
		odo := *sample.OdometerMi
		slot.lastOdometer = &odo
	}

	p.persist(ctx, slot, sample, idle)
	return nil
}

// advanceMpg feeds the interval's odometer and fuel movement into the MPG
// accumulators. A refuel interval contributes distance but no fuel drop.
func (p *PipelineService) advanceMpg(slot *vehicleSlot, sample models.TelemetrySample, prevSmoothed float64, decision fuelDecision, t config.Thresholds) {
	var distance float64
	if sample.OdometerMi != nil && slot.lastOdometer != nil {
		distance = *sample.OdometerMi - *slot.lastOdometer
		if distance < 0 {
			// Odometer went backwards; glitch, contributes nothing.
			distance = 0
		}
	}

	var fuelDrop float64
	if decision.action == actionBlend {
		fuelDrop = prevSmoothed - slot.fuel.SmoothedPct
	}

	slot.mpg.VehicleID = sample.VehicleID
	p.mpgEngine.advance(&slot.mpg, distance, fuelDrop, t)
}

// persist writes the metrics row and the per-vehicle snapshot. Each write is
// retried once; failures are counted, logged and never block the pipeline.
func (p *PipelineService) persist(ctx context.Context, slot *vehicleSlot, sample models.TelemetrySample, idle *models.IdleClassification) {
	row := models.MetricsRow{
		VehicleID:    sample.VehicleID,
		CapturedAt:   sample.CapturedAt,
		SmoothedPct:  slot.fuel.SmoothedPct,
		DriftPct:     slot.fuel.DriftPct,
		DriftWarning: slot.fuel.DriftWarning,
		MpgCurrent:   slot.mpg.MpgCurrent,
	}
	if idle != nil {
		row.IsIdle = true
		row.IdleGph = idle.IdleGph
		row.IdleMethod = idle.Method
	}

	ok := true
	if err := p.withRetry(func() error { return p.repos.Metrics.Append(ctx, row) }); err != nil {
		p.noteWriteFailure("metrics row", sample.VehicleID, err)
		ok = false
	}

	snapshot := models.VehicleState{
		FuelEstimateState: slot.fuel,
		Mpg:               slot.mpg,
		UpdatedAt:         time.Now().UTC(),
	}
	if err := p.withRetry(func() error { return p.repos.State.Save(ctx, snapshot) }); err != nil {
		p.noteWriteFailure("state snapshot", sample.VehicleID, err)
		ok = false
	}

	// The counter resets only after the whole persist cycle lands.
	if ok {
		p.writeFailures.Store(0)
	}
}

func (p *PipelineService) withRetry(fn func() error) error {
	if err := fn(); err != nil {
		return fn()
	}
	return nil
}

func (p *PipelineService) noteWriteFailure(what, vehicleID string, err error) {
	n := p.writeFailures.Add(1)
	p.log.Errorw("persistence write failed", "what", what, "vehicle", vehicleID, "failures", n, "err", err)
}

// slot returns the vehicle's state, pulling the persisted snapshot on first
// sight so a restart resumes from the last estimate instead of re-seeding.
func (p *PipelineService) slot(ctx context.Context, vehicleID string) *vehicleSlot {
	p.mu.Lock()
	s, ok := p.slots[vehicleID]
	if !ok {
		s = &vehicleSlot{}
		p.slots[vehicleID] = s
	}
	p.mu.Unlock()

	if !s.loaded {
		s.loaded = true
		if snap, err := p.repos.State.Load(ctx, vehicleID); err != nil {
			p.log.Warnw("state snapshot load failed, seeding fresh", "vehicle", vehicleID, "err", err)
		} else if snap.VehicleID != "" {
			s.fuel = snap.FuelEstimateState
			s.mpg = snap.Mpg
		}
	}
	return s
}

// dropSlot removes in-memory state after an operator clear so the next
// sample re-seeds. Called by the operator service.
func (p *PipelineService) dropSlot(vehicleID string) {
	p.mu.Lock()
	delete(p.slots, vehicleID)
	p.mu.Unlock()
}
