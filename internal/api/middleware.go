package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/leave-roster-server/internal/i18n"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/service"
	"github.com/rongwang/leave-roster-server/internal/utils"
	"golang.org/x/text/language"
)

// Request headers
const (
	HeaderActorName       = "X-Actor-Name"
	HeaderAdminKey        = "X-Admin-Key"
	HeaderClientTimestamp = "X-Client-Timestamp"
	HeaderAcceptLanguage  = "Accept-Language"
)

const (
	requestContextKey = "requestContext"
	localeKey         = "locale"
)

// RequestContextMiddleware reads who is acting, with which credential and in
// which locale, and stores it for the handlers
func RequestContextMiddleware(fallback language.Tag) gin.HandlerFunc {
	return func(c *gin.Context) {
		tag := i18n.ParseTag(c.GetHeader(HeaderAcceptLanguage), fallback)
		c.Set(localeKey, tag)

		rc := service.RequestContext{
			Actor:      strings.TrimSpace(c.GetHeader(HeaderActorName)),
			Credential: c.GetHeader(HeaderAdminKey),
		}

		if raw := c.GetHeader(HeaderClientTimestamp); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Status:  "error",
					Code:    "INVALID_ARGUMENT",
					Message: i18n.Sprintf(tag, i18n.KeyInvalidArgument, HeaderClientTimestamp+" must be RFC 3339"),
				})
				c.Abort()
				return
			}
			ts = ts.UTC()
			rc.ClientTime = &ts
		}

		c.Set(requestContextKey, rc)
		c.Next()
	}
}

// LoggingMiddleware writes one structured line per request
func LoggingMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if actor := c.GetHeader(HeaderActorName); actor != "" {
			args = append(args, "actor", actor)
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error(c.Request.Context(), "request failed", args...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn(c.Request.Context(), "request rejected", args...)
		default:
			logger.Info(c.Request.Context(), "request handled", args...)
		}
	}
}

func requestContext(c *gin.Context) service.RequestContext {
	if v, ok := c.Get(requestContextKey); ok {
		if rc, ok := v.(service.RequestContext); ok {
			return rc
		}
	}
	return service.RequestContext{}
}

func locale(c *gin.Context) language.Tag {
	if v, ok := c.Get(localeKey); ok {
		if tag, ok := v.(language.Tag); ok {
			return tag
		}
	}
	return i18n.English
}
