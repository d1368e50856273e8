package generate

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/coursepilot/server/internal/gateway"
	"codeberg.org/coursepilot/server/internal/metrics"
)

// registers the chat generation endpoint behind requireAuth; m may be nil
func RegisterRoutes(router *gin.RouterGroup, generator gateway.Generator, owners OwnerLookup, m *metrics.Metrics, requireAuth gin.HandlerFunc) {
	router.POST("/generate", requireAuth, Handler(generator, owners, m))
}
