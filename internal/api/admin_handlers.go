package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/service"
)

// privilegedRequest binds the payload of revert and hide. The admin key
// header wins over the payload key.
func (h *Handler) privilegedRequest(c *gin.Context) (service.RequestContext, string, bool) {
	var req models.PrivilegedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return service.RequestContext{}, "", false
	}

	rc := requestContext(c)
	if rc.Credential == "" {
		rc.Credential = req.AdminKey
	}
	return rc, req.AuditPath, true
}

// Revert restores a document to the snapshot of one of its audit entries
func (h *Handler) Revert(c *gin.Context) {
	rc, auditPath, ok := h.privilegedRequest(c)
	if !ok {
		return
	}

	if err := h.service.Revert(c.Request.Context(), rc, auditPath); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "audit entry reverted", "auditPath", auditPath)
	c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

// Hide suppresses an audit entry from the feed
func (h *Handler) Hide(c *gin.Context) {
	rc, auditPath, ok := h.privilegedRequest(c)
	if !ok {
		return
	}

	if err := h.service.Hide(c.Request.Context(), rc, auditPath); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

// Feed lists recent audit entries across all documents, flagging hidden ones
func (h *Handler) Feed(c *gin.Context) {
	limit := 0
	if c.Query("limit") != "" {
		n, ok := queryInt(c, "limit")
		if !ok {
			h.badRequest(c, "limit must be a number")
			return
		}
		limit = n
	}

	entries, err := h.service.Feed(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	hidden, err := h.service.HiddenPaths(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	hiddenSet := make(map[string]bool, len(hidden))
	for _, path := range hidden {
		hiddenSet[path] = true
	}

	items := make([]models.FeedItem, 0, len(entries))
	for _, entry := range entries {
		path := entry.Ref().Path()
		items = append(items, models.FeedItem{
			AuditEntry: entry,
			Path:       path,
			Hidden:     hiddenSet[path],
		})
	}

	c.JSON(http.StatusOK, models.FeedResponse{
		Status: "success",
		Items:  items,
	})
}

func (h *Handler) HiddenPaths(c *gin.Context) {
	paths, err := h.service.HiddenPaths(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.HiddenPathsResponse{
		Status: "success",
		Paths:  paths,
	})
}
