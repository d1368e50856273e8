package sessions

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/coursepilot/server/internal/metrics"
)

// registers the session endpoints behind requireAuth; hub and m may be nil
func RegisterRoutes(router *gin.RouterGroup, store Store, hub Notifier, m *metrics.Metrics, requireAuth gin.HandlerFunc) {
	group := router.Group("/sessions", requireAuth)

	group.POST("", CreateSessionHandler(store))
	group.GET("", ListSessionsHandler(store))
	group.GET("/:id", GetSessionHandler(store))
	group.PUT("/:id", SaveSessionHandler(store, hub, m))
	group.PATCH("/:id", RenameSessionHandler(store, hub))
	group.DELETE("/:id", DeleteSessionHandler(store, hub))
	group.GET("/:id/drafts", GetDraftsHandler(store))
	group.PUT("/:id/drafts/:key", SaveDraftHandler(store, hub))
}
