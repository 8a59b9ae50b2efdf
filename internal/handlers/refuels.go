package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fuelwatch/internal/service"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// isDateOnly reports whether the query string has no time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// parseTimeRange reads optional from/to query params, treating a date-only
// 'to' as end-of-day inclusive. Writes the error response itself on failure.
func (h *Handler) parseTimeRange(c *gin.Context) (from, to time.Time, ok bool) {
	var err error
	if qs := c.Query("from"); qs != "" {
		from, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return from, to, false
		}
	}
	if qs := c.Query("to"); qs != "" {
		to, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return from, to, false
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return from, to, false
	}
	return from, to, true
}

// @Summary      List refuel events
// @Description  Filter by vehicle, time range and confidence grade.
// @Tags         refuels
// @Produce      json
// @Param        vehicle_id  query  string  false  "Vehicle ID"
// @Param        from        query  string  false  "Start of range (RFC3339 or YYYY-MM-DD)"
// @Param        to          query  string  false  "End of range (RFC3339 or YYYY-MM-DD); date-only is end-of-day"
// @Param        confidence  query  string  false  "Confidence grade"  Enums(high,medium,low)
// @Success      200  {object}  map[string]interface{}  "count, refuels"
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/refuels [get]
func (h *Handler) listRefuels(c *gin.Context) {
	from, to, ok := h.parseTimeRange(c)
	if !ok {
		return
	}

	events, err := h.services.RefuelLog.List(c.Request.Context(), service.RefuelFilter{
		VehicleID:  c.Query("vehicle_id"),
		From:       from,
		To:         to,
		Confidence: c.Query("confidence"),
	})
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load refuels", "refuels_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(events), "refuels": events})
}

// @Summary      List rejected fuel jumps
// @Description  Audit trail of jumps above the trust band that did not qualify as refuels.
// @Tags         refuels
// @Produce      json
// @Param        vehicle_id  query  string  false  "Vehicle ID"
// @Success      200  {object}  map[string]interface{}  "count, rejections"
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/refuels/rejected [get]
func (h *Handler) listRefuelRejections(c *gin.Context) {
	rejections, err := h.services.RefuelLog.ListRejections(c.Request.Context(), c.Query("vehicle_id"))
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load rejections", "rejections_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rejections), "rejections": rejections})
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format %q", s)
}
