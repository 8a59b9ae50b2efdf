package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fuelwatch/internal/config"
	"fuelwatch/internal/logger"
	"fuelwatch/internal/models"
	"fuelwatch/internal/repository"
)

type fakeStateRepo struct {
	snapshots map[string]models.VehicleState
	saveErr   error
	loadErr   error
	deleted   []string
	mpgResets []string
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{snapshots: make(map[string]models.VehicleState)}
}

func (f *fakeStateRepo) Save(ctx context.Context, s models.VehicleState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.snapshots[s.VehicleID] = s
	return nil
}

func (f *fakeStateRepo) Load(ctx context.Context, vehicleID string) (models.VehicleState, error) {
	if f.loadErr != nil {
		return models.VehicleState{}, f.loadErr
	}
	return f.snapshots[vehicleID], nil
}

func (f *fakeStateRepo) List(ctx context.Context) ([]models.VehicleState, error) {
	out := make([]models.VehicleState, 0, len(f.snapshots))
	for _, s := range f.snapshots {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStateRepo) Delete(ctx context.Context, vehicleID string) error {
	f.deleted = append(f.deleted, vehicleID)
	delete(f.snapshots, vehicleID)
	return nil
}

func (f *fakeStateRepo) ResetMpg(ctx context.Context, vehicleID string) error {
	f.mpgResets = append(f.mpgResets, vehicleID)
	if s, ok := f.snapshots[vehicleID]; ok {
		s.Mpg = models.MpgState{VehicleID: vehicleID}
		f.snapshots[vehicleID] = s
	}
	return nil
}

type fakeMetricsRepo struct {
	rows      []models.MetricsRow
	appendErr error
	lastLimit int
}

func (f *fakeMetricsRepo) Append(ctx context.Context, row models.MetricsRow) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeMetricsRepo) List(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.MetricsRow, error) {
	f.lastLimit = limit
	return f.rows, nil
}

func newTestPipeline(state *fakeStateRepo, refuel *fakeRefuelRepo, metrics *fakeMetricsRepo) *PipelineService {
	repos := &repository.Repository{State: state, Refuel: refuel, Metrics: metrics}
	return NewPipelineService(repos, config.NewStore(config.Defaults()), logger.Get("error"))
}

func TestPipeline_ProcessSeedsAndPersists(t *testing.T) {
	state := newFakeStateRepo()
	metrics := &fakeMetricsRepo{}
	p := newTestPipeline(state, &fakeRefuelRepo{}, metrics)

	sample := sampleAt("truck-1", t0, 72.5)
	if err := p.Process(context.Background(), sample); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, ok := state.snapshots["truck-1"]
	if !ok {
		t.Fatalf("expected a persisted snapshot")
	}
	if snap.SmoothedPct != 72.5 {
		t.Fatalf("expected smoothed 72.5, got %.2f", snap.SmoothedPct)
	}
	if len(metrics.rows) != 1 {
		t.Fatalf("expected 1 metrics row, got %d", len(metrics.rows))
	}
	if metrics.rows[0].SmoothedPct != 72.5 {
		t.Fatalf("metrics row smoothed wrong: %.2f", metrics.rows[0].SmoothedPct)
	}
}

func TestPipeline_StaleSampleRejectedWithoutStateChange(t *testing.T) {
	state := newFakeStateRepo()
	metrics := &fakeMetricsRepo{}
	p := newTestPipeline(state, &fakeRefuelRepo{}, metrics)
	ctx := context.Background()

	if err := p.Process(ctx, sampleAt("truck-1", t0, 60)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stale := sampleAt("truck-1", t0.Add(-time.Hour), 10)
	err := p.Process(ctx, stale)
	var staleErr *StaleSampleError
	if !errors.As(err, &staleErr) {
		t.Fatalf("expected StaleSampleError, got %v", err)
	}

	snap := state.snapshots["truck-1"]
	if snap.SmoothedPct != 60 {
		t.Fatalf("stale sample changed state: %.2f", snap.SmoothedPct)
	}
	if len(metrics.rows) != 1 {
		t.Fatalf("stale sample wrote a metrics row")
	}
}

func TestPipeline_RefuelStoredOnceDedupSuppressed(t *testing.T) {
	state := newFakeStateRepo()
	refuel := &fakeRefuelRepo{}
	p := newTestPipeline(state, refuel, &fakeMetricsRepo{})
	ctx := context.Background()

	if err := p.Process(ctx, sampleAt("truck-1", t0, 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Process(ctx, sampleAt("truck-1", t0.Add(30*time.Minute), 80)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refuel.events) != 1 {
		t.Fatalf("expected 1 refuel event, got %d", len(refuel.events))
	}
	if refuel.events[0].GallonsAdded != 60 {
		t.Fatalf("expected 60 gallons, got %.1f", refuel.events[0].GallonsAdded)
	}

	// Another qualifying jump with an event already inside the dedup window.
	refuel.existsNear = true
	if err := p.Process(ctx, sampleAt("truck-2", t0, 15)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Process(ctx, sampleAt("truck-2", t0.Add(30*time.Minute), 75)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refuel.events) != 1 {
		t.Fatalf("dedup window must suppress the second event, got %d", len(refuel.events))
	}

	// The estimate still snaps even when the event is deduplicated.
	if snap := state.snapshots["truck-2"]; snap.SmoothedPct != 75 {
		t.Fatalf("expected snapped estimate 75, got %.2f", snap.SmoothedPct)
	}
}

func TestPipeline_FuelLessFirstSampleSeedsOnFirstReading(t *testing.T) {
	state := newFakeStateRepo()
	refuel := &fakeRefuelRepo{}
	p := newTestPipeline(state, refuel, &fakeMetricsRepo{})
	ctx := context.Background()

	engineOnly := models.TelemetrySample{
		VehicleID:  "truck-1",
		CapturedAt: t0,
		RPM:        fptr(900),
		SpeedMph:   fptr(0),
	}
	if err := p.Process(ctx, engineOnly); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Process(ctx, sampleAt("truck-1", t0.Add(10*time.Minute), 60)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(refuel.events) != 0 {
		t.Fatalf("first fuel reading must seed, not refuel: %+v", refuel.events)
	}
	snap := state.snapshots["truck-1"]
	if snap.SmoothedPct != 60 || !snap.Seeded {
		t.Fatalf("expected seeded snapshot at 60, got %+v", snap.FuelEstimateState)
	}
}

func TestPipeline_RejectedJumpWritesAuditRecord(t *testing.T) {
	refuel := &fakeRefuelRepo{}
	p := newTestPipeline(newFakeStateRepo(), refuel, &fakeMetricsRepo{})
	ctx := context.Background()

	if err := p.Process(ctx, sampleAt("truck-1", t0, 88)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Process(ctx, sampleAt("truck-1", t0.Add(20*time.Minute), 96)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(refuel.events) != 0 {
		t.Fatalf("saturation jump must not store an event")
	}
	if len(refuel.rejections) != 1 {
		t.Fatalf("expected 1 rejection record, got %d", len(refuel.rejections))
	}
	rej := refuel.rejections[0]
	if rej.Reason != models.RejectTankSaturation {
		t.Fatalf("expected reason %s, got %s", models.RejectTankSaturation, rej.Reason)
	}
	if rej.RejectionID == "" {
		t.Fatalf("expected non-empty RejectionID")
	}
}

func TestPipeline_IdleRidesMetricsRow(t *testing.T) {
	metrics := &fakeMetricsRepo{}
	p := newTestPipeline(newFakeStateRepo(), &fakeRefuelRepo{}, metrics)

	sample := models.TelemetrySample{
		VehicleID:   "truck-1",
		CapturedAt:  t0,
		RawFuelPct:  fptr(55),
		SpeedMph:    fptr(0),
		RPM:         fptr(650),
		FuelRateLph: fptr(1.5),
	}
	if err := p.Process(context.Background(), sample); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(metrics.rows) != 1 {
		t.Fatalf("expected 1 metrics row, got %d", len(metrics.rows))
	}
	row := metrics.rows[0]
	if !row.IsIdle {
		t.Fatalf("expected idle row")
	}
	if row.IdleMethod != models.MethodSensorFuelRate {
		t.Fatalf("expected sensor method, got %s", row.IdleMethod)
	}
}

func TestPipeline_MpgCountsDistanceButNotRefuelFuel(t *testing.T) {
	state := newFakeStateRepo()
	p := newTestPipeline(state, &fakeRefuelRepo{}, &fakeMetricsRepo{})
	ctx := context.Background()

	moving := func(at time.Time, fuelPct, odo float64) models.TelemetrySample {
		return models.TelemetrySample{
			VehicleID:  "truck-1",
			CapturedAt: at,
			RawFuelPct: fptr(fuelPct),
			OdometerMi: fptr(odo),
			SpeedMph:   fptr(45),
		}
	}

	if err := p.Process(ctx, moving(t0, 30, 1000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Refuel interval: jump to 90, 40 miles driven. Distance accrues, the
	// refuel jump must not register as fuel burned.
	if err := p.Process(ctx, moving(t0.Add(time.Hour), 90, 1040)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := state.snapshots["truck-1"]
	if snap.Mpg.FuelAccumGal != 0 {
		t.Fatalf("refuel interval accrued fuel: %.2f gal", snap.Mpg.FuelAccumGal)
	}
	if snap.Mpg.DistanceAccumMi != 40 {
		t.Fatalf("expected 40 mi accrued, got %.1f", snap.Mpg.DistanceAccumMi)
	}
}

func TestPipeline_WriteFailuresCountAndReset(t *testing.T) {
	metrics := &fakeMetricsRepo{appendErr: errors.New("disk full")}
	p := newTestPipeline(newFakeStateRepo(), &fakeRefuelRepo{}, metrics)
	ctx := context.Background()

	if err := p.Process(ctx, sampleAt("truck-1", t0, 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.WriteFailures() == 0 {
		t.Fatalf("expected write failures to be counted")
	}

	metrics.appendErr = nil
	if err := p.Process(ctx, sampleAt("truck-1", t0.Add(time.Minute), 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.WriteFailures() != 0 {
		t.Fatalf("expected counter reset after successful write, got %d", p.WriteFailures())
	}
}

func TestPipeline_SnapshotFailureKeepsCounterGrowing(t *testing.T) {
	state := newFakeStateRepo()
	state.saveErr = errors.New("database is locked")
	p := newTestPipeline(state, &fakeRefuelRepo{}, &fakeMetricsRepo{})
	ctx := context.Background()

	// Metrics append succeeding must not reset the counter while the
	// snapshot write keeps failing.
	if err := p.Process(ctx, sampleAt("truck-1", t0, 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.WriteFailures(); got != 1 {
		t.Fatalf("WriteFailures() = %d, want 1", got)
	}
	if err := p.Process(ctx, sampleAt("truck-1", t0.Add(time.Minute), 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.WriteFailures(); got != 2 {
		t.Fatalf("WriteFailures() = %d, want 2", got)
	}

	state.saveErr = nil
	if err := p.Process(ctx, sampleAt("truck-1", t0.Add(2*time.Minute), 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.WriteFailures(); got != 0 {
		t.Fatalf("expected counter reset after full persist cycle, got %d", got)
	}
}

func TestPipeline_SubmitRoutesSameVehicleToSameShard(t *testing.T) {
	p := newTestPipeline(newFakeStateRepo(), &fakeRefuelRepo{}, &fakeMetricsRepo{})

	// Without workers running, repeated submits for one vehicle land on one
	// queue; queue depth tells us they did not scatter.
	for i := 0; i < 10; i++ {
		if ok := p.Submit(sampleAt("truck-1", t0.Add(time.Duration(i)*time.Minute), 50)); !ok {
			t.Fatalf("submit %d rejected with empty queues", i)
		}
	}
	loaded := 0
	for _, ch := range p.shards {
		if n := len(ch); n > 0 {
			loaded++
			if n != 10 {
				t.Fatalf("expected all 10 samples on one shard, found %d", n)
			}
		}
	}
	if loaded != 1 {
		t.Fatalf("samples scattered across %d shards", loaded)
	}
}
