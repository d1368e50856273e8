package websocket

import (
	"github.com/gin-gonic/gin"

	ws "codeberg.org/coursepilot/server/internal/websocket"
)

func RegisterRoutes(router *gin.RouterGroup, hub *ws.Hub, owners OwnerLookup, requireAuth gin.HandlerFunc, checkOrigin OriginCheck) {
	router.GET("/ws", requireAuth, NotificationsHandler(hub, owners, checkOrigin))
}
