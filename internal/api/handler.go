package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rongwang/leave-roster-server/internal/i18n"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/service"
	"github.com/rongwang/leave-roster-server/internal/utils"
	"golang.org/x/text/language"
)

// Handler serves the HTTP API on top of a Service
type Handler struct {
	service service.Service
	logger  *utils.Logger
	locale  language.Tag
}

// NewHandler creates a new Handler. locale is used when a request names no
// supported language.
func NewHandler(svc service.Service, logger *utils.Logger, locale language.Tag) *Handler {
	if logger == nil {
		logger = utils.NopLogger()
	}
	if locale == language.Und {
		locale = i18n.English
	}
	return &Handler{
		service: svc,
		logger:  logger,
		locale:  locale,
	}
}

// SetupRoutes registers every route on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(RequestContextMiddleware(h.locale))
	{
		// Pilot directory
		api.GET("/pilots", h.ListPilots)
		api.POST("/pilots", h.CreatePilot)
		api.PATCH("/pilots/:id", h.UpdatePilot)
		api.GET("/pilots/:id/audit", h.PilotAudit)

		// Availability
		api.GET("/availability", h.Availability)

		// Leave weeks
		api.GET("/leaves", h.ListLeaveWeeks)
		api.PUT("/leaves", h.SaveLeaves)
		api.POST("/leaves/approval", h.SetApproval)
		api.GET("/leaves/:id", h.GetLeaveWeek)
		api.POST("/leaves/:id/remove", h.RemoveLeaveWeek)
		api.DELETE("/leaves/:id", h.DeleteLeaveWeek)
		api.GET("/leaves/:id/audit", h.LeaveAudit)

		// Feed
		api.GET("/feed", h.Feed)
		api.GET("/feed/hidden", h.HiddenPaths)

		// Privileged operations
		admin := api.Group("/admin")
		{
			admin.POST("/revert", h.Revert)
			admin.POST("/hide", h.Hide)
		}
	}
}

// respondError maps a service error onto a status code and a localized message
func (h *Handler) respondError(c *gin.Context, err error) {
	tag := locale(c)

	var status int
	var code, msg string
	switch service.Kind(err) {
	case "invalid_argument":
		status, code = http.StatusBadRequest, "INVALID_ARGUMENT"
		msg = i18n.Sprintf(tag, i18n.KeyInvalidArgument, detail(err, service.ErrInvalidArgument))
	case "permission_denied":
		status, code = http.StatusForbidden, "PERMISSION_DENIED"
		msg = i18n.Sprintf(tag, i18n.KeyPermissionDenied)
	case "not_found":
		status, code = http.StatusNotFound, "NOT_FOUND"
		msg = i18n.Sprintf(tag, i18n.KeyNotFound)
	case "failed_precondition":
		status, code = http.StatusPreconditionFailed, "FAILED_PRECONDITION"
		msg = i18n.Sprintf(tag, i18n.KeyFailedPrecondition, detail(err, service.ErrFailedPrecondition))
	case "conflict":
		status, code = http.StatusConflict, "CONFLICT"
		msg = i18n.Sprintf(tag, i18n.KeyConflict)
	default:
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		status, code = http.StatusInternalServerError, "INTERNAL"
		msg = i18n.Sprintf(tag, i18n.KeyInternal)
	}

	c.JSON(status, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: msg,
	})
}

// detail strips the kind prefix from a service error message
func detail(err error, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	h.respondError(c, fmt.Errorf("%w: %s", service.ErrInvalidArgument, msg))
}

func queryInt(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Query(name))
	return n, err == nil
}
