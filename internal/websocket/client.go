package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"codeberg.org/coursepilot/server/internal/errors"
	"codeberg.org/coursepilot/server/internal/logger"
)

// creates a new websocket client connection
func NewClient(id, sessionID, userID, ipAddress string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		IPAddress: ipAddress,
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, 256),
		limiter:   rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
	}
}

// reads messages from the websocket connection to the hub for processing
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close() //nolint:errcheck,gosec // G104: defer cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: websocket setup
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: pong handler
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket error",
					"client_id", c.ID,
					"session_id", c.SessionID,
					"error", err,
				)
			}

			break
		}

		if !c.allow() {
			c.SendError("too_many_requests", "too many messages", "")
			continue
		}

		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.SendError("bad_request", "invalid message format", err.Error())
			continue
		}

		// the connection decides which session and client a message belongs to
		msg.SessionID = c.SessionID
		msg.ClientID = c.ID
		msg.Timestamp = time.Now()

		select {
		case c.hub.Inbound <- &msg:
		case <-c.hub.done:
			return
		}
	}
}

// writes messages from the hub to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck,gosec // G104: defer cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket timing

			if !ok {
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck,gosec // G104: close message
				return
			}

			// one frame per message so clients can decode frames as JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket ping timing

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// queues a message for the client; a client whose buffer is full is closed
func (c *Client) Send(msg *Message) error {
	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- messageBytes:
		return nil
	default:
		logger.Warn("client send buffer full, closing",
			"client_id", c.ID,
			"session_id", c.SessionID,
		)
		c.closeLocked()
		return ErrConnectionClosed
	}
}

// sends an error message to the client
func (c *Client) SendError(code, message, details string) {
	errorMsg, err := NewMessage(TypeError, c.SessionID, errors.ErrorResponse{
		Error:   code,
		Message: message,
		Details: sanitizeDetails(details),
	})
	if err != nil {
		logger.ErrorErr(err, "failed to create error message",
			"client_id", c.ID,
			"session_id", c.SessionID,
			"error_code", code,
		)
		return
	}

	c.Send(errorMsg) //nolint:errcheck,gosec // G104: best effort error notification
}

// closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// checks if the client is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// keeps decoder errors short
func sanitizeDetails(details string) string {
	const maxDetails = 200
	if len(details) > maxDetails {
		return details[:maxDetails]
	}
	return details
}
