package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PauseStore holds the shared maintenance flag. Backed by Redis in
// production so every instance sees the flip at once.
type PauseStore interface {
	IsPaused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
}

const (
	ctxUserID   = "user_id"
	ctxUserRole = "user_role"

	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// identityMiddleware trusts the authenticated identity forwarded by the auth
// gateway. Requests without an id never reach the services.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader(headerUserID), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or invalid user identity",
			})
			return
		}

		role := c.GetHeader(headerUserRole)
		if role == "" {
			role = models.RoleUser
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxUserRole, role)
		c.Next()
	}
}

// adminOnly gates admin routes on the forwarded role
func adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxUserRole) != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			return
		}
		c.Next()
	}
}

// pauseMiddleware blocks non-admin traffic while the maintenance flag is set.
// The flag is read per request, so no instance caches a stale value.
func pauseMiddleware(pause PauseStore) gin.HandlerFunc {
	logger := util.GetLogger()

	return func(c *gin.Context) {
		paused, err := pause.IsPaused(c.Request.Context())
		if err != nil {
			// Fail open: a flag read outage must not take down purchases.
			logger.Warn("Failed to read pause flag", zap.Error(err))
			c.Next()
			return
		}

		if paused && c.GetString(ctxUserRole) != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Service is under maintenance. Please try again later.",
			})
			return
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
