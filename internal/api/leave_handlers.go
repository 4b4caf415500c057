package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/leave-roster-server/internal/models"
)

// Availability reports whether a pilot is free in a given week
func (h *Handler) Availability(c *gin.Context) {
	year, okYear := queryInt(c, "year")
	week, okWeek := queryInt(c, "week")
	if !okYear || !okWeek {
		h.badRequest(c, "year and week are required")
		return
	}
	name := c.Query("name")

	available, err := h.service.IsAvailable(c.Request.Context(), name, year, week)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AvailabilityResponse{
		Status:     "success",
		Name:       name,
		Year:       year,
		WeekNumber: week,
		Available:  available,
	})
}

// ListLeaveWeeks lists the weeks of one pool in a year
func (h *Handler) ListLeaveWeeks(c *gin.Context) {
	year, ok := queryInt(c, "year")
	if !ok {
		h.badRequest(c, "year is required")
		return
	}
	leaveType := models.LeaveType(c.Query("type"))

	includeDeleted := false
	if raw := c.Query("includeDeleted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(c, "includeDeleted must be a boolean")
			return
		}
		includeDeleted = v
	}

	weeks, err := h.service.ListLeaveWeeks(c.Request.Context(), year, leaveType, includeDeleted)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LeaveWeeksResponse{
		Status: "success",
		Weeks:  weeks,
	})
}

func (h *Handler) GetLeaveWeek(c *gin.Context) {
	week, err := h.service.GetLeaveWeek(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LeaveWeekResponse{
		Status: "success",
		Week:   *week,
	})
}

// SaveLeaves applies a batch of week edits. Weeks succeed or fail on their
// own; the body always carries the per-week results.
func (h *Handler) SaveLeaves(c *gin.Context) {
	var req models.SaveLeavesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	resp, err := h.service.SaveLeaves(c.Request.Context(), requestContext(c), req)
	if err != nil && resp == nil {
		h.respondError(c, err)
		return
	}
	if err != nil {
		h.logger.Warn(c.Request.Context(), "some weeks were not saved", "year", req.Year, "type", req.Type, "error", err)
		c.JSON(http.StatusMultiStatus, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SetApproval(c *gin.Context) {
	var req models.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	if err := h.service.SetApproval(c.Request.Context(), requestContext(c), req); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

// RemoveLeaveWeek soft-deletes a week
func (h *Handler) RemoveLeaveWeek(c *gin.Context) {
	week, err := h.service.RemoveLeaveWeek(c.Request.Context(), requestContext(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LeaveWeekResponse{
		Status: "success",
		Week:   *week,
	})
}

// DeleteLeaveWeek is refused for every week; use RemoveLeaveWeek
func (h *Handler) DeleteLeaveWeek(c *gin.Context) {
	if err := h.service.DeleteLeaveWeek(c.Request.Context(), requestContext(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) LeaveAudit(c *gin.Context) {
	h.auditEntries(c, models.LeaveTarget(c.Param("id")))
}

func (h *Handler) PilotAudit(c *gin.Context) {
	h.auditEntries(c, models.PilotTarget(c.Param("id")))
}

func (h *Handler) auditEntries(c *gin.Context, target models.Target) {
	entries, err := h.service.AuditEntries(c.Request.Context(), target)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AuditEntriesResponse{
		Status:  "success",
		Target:  target.Path(),
		Entries: entries,
	})
}
