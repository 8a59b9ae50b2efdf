package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fuelwatch/internal/ingest"
)

// ingestRequest is the payload for a batch of raw provider samples.
type ingestRequest struct {
	Samples []rawSample `json:"samples" binding:"required"`
}

// rawSample mirrors the provider tuple: identity, timestamp, parameter map.
type rawSample struct {
	VehicleID string         `json:"vehicle_id" example:"V1"`
	Timestamp time.Time      `json:"timestamp" example:"2025-06-01T12:00:00Z"`
	Params    map[string]any `json:"params"`
}

// ingestResponse reports per-batch outcomes.
type ingestResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Queued   int `json:"queued"`
}

var sharedAdapter = ingest.NewAdapter()

// @Summary      Ingest telemetry samples
// @Description  Accepts a batch of raw provider samples; malformed samples are counted and skipped, never fatal.
// @Tags         ingest
// @Accept       json
// @Produce      json
// @Param        body  body   ingestRequest  true  "Sample batch"
// @Success      202   {object}  ingestResponse
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/ingest [post]
func (h *Handler) ingestSamples(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	var resp ingestResponse
	for _, raw := range req.Samples {
		sample, err := sharedAdapter.Normalize(raw.VehicleID, raw.Timestamp, raw.Params)
		if err != nil {
			resp.Rejected++
			if h.log != nil {
				h.log.Warnw("ingest sample rejected", "vehicle", raw.VehicleID, "err", err)
			}
			continue
		}
		resp.Accepted++
		if h.services.Pipeline.Submit(sample) {
			resp.Queued++
		}
	}

	c.JSON(http.StatusAccepted, resp)
}
