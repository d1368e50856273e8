package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"codeberg.org/coursepilot/server/internal/logger"
)

const checkTimeout = 2 * time.Second

// returns the server health status
func Handler(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Status:  "healthy",
		Service: serviceName,
		Version: version,
	})
}

// reports 503 until every named check passes
func ReadyHandler(checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))

		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("readiness check failed", "check", name, "error", err)
				results[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "up"
		}

		resp := Response{Status: "ready", Service: serviceName, Version: version, Checks: results}
		if status != http.StatusOK {
			resp.Status = "degraded"
		}

		c.JSON(status, resp)
	}
}

// responds with pong for testing
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{Message: "pong"})
}
