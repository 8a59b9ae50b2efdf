package handlers

import (
	"context"
	"time"

	"fuelwatch/internal/models"
	"fuelwatch/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockPipeline struct {
	submitOK   bool
	processErr error
	submitted  []models.TelemetrySample
}

func (m *mockPipeline) Run(ctx context.Context) { <-ctx.Done() }

func (m *mockPipeline) Submit(sample models.TelemetrySample) bool {
	m.submitted = append(m.submitted, sample)
	return m.submitOK
}

func (m *mockPipeline) Process(ctx context.Context, sample models.TelemetrySample) error {
	return m.processErr
}

type mockMonitoring struct {
	state     models.VehicleState
	stateErr  error
	vehicles  []models.VehicleState
	listErr   error
	metrics   []models.MetricsRow
	lastLimit int
}

func (m *mockMonitoring) GetVehicleState(ctx context.Context, vehicleID string) (models.VehicleState, error) {
	return m.state, m.stateErr
}

func (m *mockMonitoring) ListVehicles(ctx context.Context) ([]models.VehicleState, error) {
	return m.vehicles, m.listErr
}

func (m *mockMonitoring) ListMetrics(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.MetricsRow, error) {
	m.lastLimit = limit
	return m.metrics, nil
}

type mockRefuelLog struct {
	events     []models.RefuelEvent
	rejections []models.RefuelRejection
	listErr    error
	lastFilter service.RefuelFilter
}

func (m *mockRefuelLog) List(ctx context.Context, f service.RefuelFilter) ([]models.RefuelEvent, error) {
	m.lastFilter = f
	return m.events, m.listErr
}

func (m *mockRefuelLog) ListRejections(ctx context.Context, vehicleID string) ([]models.RefuelRejection, error) {
	return m.rejections, m.listErr
}

type mockOperator struct {
	clearFuelErr error
	clearMpgErr  error
	fuelClears   []string
	mpgClears    []string
}

func (m *mockOperator) ClearFuelState(ctx context.Context, vehicleID string) error {
	m.fuelClears = append(m.fuelClears, vehicleID)
	return m.clearFuelErr
}

func (m *mockOperator) ClearMpgState(ctx context.Context, vehicleID string) error {
	m.mpgClears = append(m.mpgClears, vehicleID)
	return m.clearMpgErr
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}
