package websocket

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"codeberg.org/coursepilot/server/internal/auth"
	"codeberg.org/coursepilot/server/internal/errors"
	"codeberg.org/coursepilot/server/internal/logger"
	ws "codeberg.org/coursepilot/server/internal/websocket"
)

// subscribes an author to the save notifications of one of their sessions;
// other sessions answer 404 so their existence is not revealed
func NotificationsHandler(hub *ws.Hub, owners OwnerLookup, checkOrigin OriginCheck) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}

	return func(c *gin.Context) {
		userID, exists := auth.GetUserID(c)
		if !exists {
			errors.Unauthorized(c, "")
			return
		}

		var params ConnectParams
		if err := c.ShouldBindQuery(&params); err != nil {
			errors.BadRequest(c, "invalid parameters", err)
			return
		}

		if !errors.IsValidUUID(params.SessionID) {
			errors.BadRequest(c, "invalid session_id format", nil)
			return
		}

		if !ownsSession(c, owners, userID, params.SessionID) {
			return
		}

		// check connection limits before accepting new connection
		ipAddress := c.ClientIP()
		if canAccept, reason := hub.CanAcceptConnection(userID, ipAddress); !canAccept {
			errors.TooManyRequests(c, reason)
			return
		}

		clientID, err := ws.GenerateClientID()
		if err != nil {
			errors.InternalError(c, "failed to generate client ID", err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.ErrorErr(err, "failed to upgrade connection",
				"session_id", params.SessionID,
				"ip", ipAddress,
			)
			return
		}

		// track IP connection only after successful upgrade
		hub.TrackIPConnection(ipAddress)

		client := ws.NewClient(clientID, params.SessionID, userID, ipAddress, conn, hub)
		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()

		logger.Info("websocket connection established",
			"client_id", clientID,
			"session_id", params.SessionID,
			"user_id", userID,
			"ip", ipAddress,
		)
	}
}

// writes the error response itself when it returns false
func ownsSession(c *gin.Context, owners OwnerLookup, userID, sessionID string) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ownerLookupTimeout)
	defer cancel()

	owner, err := owners.SessionOwner(ctx, sessionID)
	if err != nil {
		errors.FromService(c, "failed to look up session", err)
		return false
	}
	if owner != userID {
		errors.SessionNotFound(c)
		return false
	}
	return true
}
