package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fuelwatch/internal/service"
)

const (
	errListVehicles = "failed to list vehicles"
	errGetState     = "failed to load vehicle state"
	errGetMetrics   = "failed to load metrics"
	errClearState   = "failed to clear state"
)

// @Summary      List vehicles
// @Tags         vehicles
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, vehicles"
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/vehicles [get]
func (h *Handler) listVehicles(c *gin.Context) {
	states, err := h.services.Monitoring.ListVehicles(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListVehicles, "vehicles_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(states), "vehicles": states})
}

// @Summary      Get vehicle state
// @Description  Current fuel estimate, drift and MPG snapshot for one vehicle.
// @Tags         vehicles
// @Produce      json
// @Param        id  path  string  true  "Vehicle ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/vehicles/{id}/state [get]
func (h *Handler) getVehicleState(c *gin.Context) {
	st, err := h.services.Monitoring.GetVehicleState(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrVehicleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "vehicle_state_failed", err, "vehicle", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Get vehicle metrics
// @Description  Derived per-sample rows, newest first.
// @Tags         vehicles
// @Produce      json
// @Param        id     path   string  true   "Vehicle ID"
// @Param        from   query  string  false  "Start of range (RFC3339 or YYYY-MM-DD)"
// @Param        to     query  string  false  "End of range (RFC3339 or YYYY-MM-DD)"
// @Param        limit  query  int     false  "Max rows (default 500)"
// @Success      200  {object}  map[string]interface{}  "count, metrics"
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/vehicles/{id}/metrics [get]
func (h *Handler) getVehicleMetrics(c *gin.Context) {
	from, to, ok := h.parseTimeRange(c)
	if !ok {
		return
	}
	limit := 0
	if qs := c.Query("limit"); qs != "" {
		v, err := strconv.Atoi(qs)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit'"})
			return
		}
		limit = v
	}

	rows, err := h.services.Monitoring.ListMetrics(c.Request.Context(), c.Param("id"), from, to, limit)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetMetrics, "vehicle_metrics_failed", err, "vehicle", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "metrics": rows})
}

// @Summary      Clear fuel state
// @Description  Operator action: deletes the vehicle's filter state so the next sample re-seeds.
// @Tags         vehicles
// @Produce      json
// @Param        id  path  string  true  "Vehicle ID"
// @Success      200  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/vehicles/{id}/state/clear [post]
func (h *Handler) clearFuelState(c *gin.Context) {
	if err := h.services.Operator.ClearFuelState(c.Request.Context(), c.Param("id")); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errClearState, "state_clear_failed", err, "vehicle", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "state_cleared"})
}

// @Summary      Clear MPG state
// @Description  Operator action: zeroes the MPG accumulators and EMA.
// @Tags         vehicles
// @Produce      json
// @Param        id  path  string  true  "Vehicle ID"
// @Success      200  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/vehicles/{id}/mpg/clear [post]
func (h *Handler) clearMpgState(c *gin.Context) {
	if err := h.services.Operator.ClearMpgState(c.Request.Context(), c.Param("id")); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errClearState, "mpg_clear_failed", err, "vehicle", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "mpg_cleared"})
}
