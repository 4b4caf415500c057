package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/leave-roster-server/internal/models"
)

func (h *Handler) ListPilots(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.Query("active"))

	pilots, err := h.service.ListPilots(c.Request.Context(), activeOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PilotsResponse{
		Status: "success",
		Pilots: pilots,
	})
}

func (h *Handler) CreatePilot(c *gin.Context) {
	var req models.CreatePilotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	pilot, err := h.service.CreatePilot(c.Request.Context(), requestContext(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.PilotResponse{
		Status: "success",
		Pilot:  *pilot,
	})
}

func (h *Handler) UpdatePilot(c *gin.Context) {
	var req models.UpdatePilotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	pilot, err := h.service.UpdatePilot(c.Request.Context(), requestContext(c), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PilotResponse{
		Status: "success",
		Pilot:  *pilot,
	})
}
