package websocket

import (
	"time"

	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/metrics"
)

// creates a hub; m may be nil
func NewHub(m *metrics.Metrics) *Hub {
	h := &Hub{
		sessions:         make(map[string]map[string]*Client),
		Register:         make(chan *Client),
		Unregister:       make(chan *Client),
		Inbound:          make(chan *Message, 256),
		handlers:         make(map[string]MessageHandler),
		shutdown:         make(chan struct{}),
		done:             make(chan struct{}),
		userConnections:  make(map[string]int),
		ipConnections:    make(map[string]int),
		sessionSequences: make(map[string]uint64),
		metrics:          m,
	}

	h.RegisterHandler(TypePing, PingHandler())
	return h
}

// registers a handler for a specific message type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[messageType] = handler
}

// starts the hub's main loop
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.Inbound:
			h.handleMessage(message)

		case <-h.shutdown:
			h.closeAllConnections()
			return
		}
	}
}

// adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[client.SessionID] == nil {
		h.sessions[client.SessionID] = make(map[string]*Client)
	}

	h.sessions[client.SessionID][client.ID] = client

	if client.UserID != "" {
		h.userConnections[client.UserID]++
	}

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
	}

	logger.Info("client registered",
		"client_id", client.ID,
		"session_id", client.SessionID,
		"user_id", client.UserID,
	)
}

// removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionClients, exists := h.sessions[client.SessionID]
	if !exists {
		return
	}

	if _, exists := sessionClients[client.ID]; !exists {
		return
	}

	delete(sessionClients, client.ID)
	client.Close()
	h.untrackLocked(client)

	logger.Info("client unregistered",
		"client_id", client.ID,
		"session_id", client.SessionID,
	)

	if len(sessionClients) == 0 {
		delete(h.sessions, client.SessionID)
		delete(h.sessionSequences, client.SessionID)
	}
}

// drops connection counts of a removed client (must be called with lock held)
func (h *Hub) untrackLocked(client *Client) {
	if client.UserID != "" {
		h.userConnections[client.UserID]--

		if h.userConnections[client.UserID] <= 0 {
			delete(h.userConnections, client.UserID)
		}
	}

	if client.IPAddress != "" {
		h.ipConnections[client.IPAddress]--

		if h.ipConnections[client.IPAddress] <= 0 {
			delete(h.ipConnections, client.IPAddress)
		}
	}

	if h.metrics != nil {
		h.metrics.WSConnections.Dec()
	}
}

// processes an incoming message
func (h *Hub) handleMessage(msg *Message) {
	h.mu.RLock()
	sender, exists := h.sessions[msg.SessionID][msg.ClientID]
	handler, handled := h.handlers[msg.Type]
	h.mu.RUnlock()

	if !exists {
		logger.Warn("sender client not found for message",
			"client_id", msg.ClientID,
			"session_id", msg.SessionID,
			"message_type", msg.Type,
		)
		return
	}

	if !handled {
		logger.Warn("unhandled message type received",
			"message_type", msg.Type,
			"client_id", sender.ID,
			"session_id", msg.SessionID,
		)

		sender.SendError("bad_request", "unsupported message type", "message type not recognized")
		return
	}

	if err := handler(h, sender, msg); err != nil {
		logger.ErrorErr(err, "handler error",
			"message_type", msg.Type,
			"client_id", sender.ID,
			"session_id", msg.SessionID,
		)
	}
}

// builds a notification and sends it to every client of the session
func (h *Hub) Notify(sessionID, msgType string, payload any) {
	msg, err := NewMessage(msgType, sessionID, payload)
	if err != nil {
		logger.ErrorErr(err, "failed to build notification",
			"session_id", sessionID,
			"message_type", msgType,
		)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastToSession(sessionID, msg, "")
}

// the internal broadcast function (must be called with lock held)
func (h *Hub) broadcastToSession(sessionID string, msg *Message, excludeClientID string) {
	sessionClients, exists := h.sessions[sessionID]
	if !exists {
		return
	}

	// assign sequence number to message
	h.sessionSequences[sessionID]++
	msg.Sequence = h.sessionSequences[sessionID]

	for clientID, client := range sessionClients {
		if clientID == excludeClientID {
			continue
		}

		if err := client.Send(msg); err != nil {
			logger.ErrorErr(err, "failed to send message to client",
				"client_id", clientID,
				"session_id", sessionID,
			)
		}
	}
}

// number of clients watching a session
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// number of sessions with at least one watcher
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// stops the hub after telling every client; safe to call more than once
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// blocks until Run returned
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	watched := len(h.sessions)

	for sessionID := range h.sessions {
		msg, err := NewMessage(TypeServerShutdown, sessionID, ServerShutdownPayload{Reason: "server is shutting down"})
		if err != nil {
			logger.ErrorErr(err, "failed to create shutdown message")
			continue
		}
		h.broadcastToSession(sessionID, msg, "")
	}
	h.mu.Unlock()

	// clients reconnect after this; let the notice reach them first
	if watched > 0 {
		time.Sleep(shutdownGrace)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("closing all websocket connections", "sessions", watched)

	for _, sessionClients := range h.sessions {
		for _, client := range sessionClients {
			client.Close()
			h.untrackLocked(client)
		}
	}

	h.sessions = make(map[string]map[string]*Client)
	h.sessionSequences = make(map[string]uint64)
}

// checks if a new connection should be allowed based on limits
func (h *Hub) CanAcceptConnection(userID, ipAddress string) (bool, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// check per-user limit
	if userID != "" {
		if h.userConnections[userID] >= maxConnectionsPerUser {
			return false, "Maximum connections per user exceeded"
		}
	}

	// check per-IP limit
	if h.ipConnections[ipAddress] >= maxConnectionsPerIP {
		return false, "Maximum connections per IP address exceeded"
	}

	return true, ""
}

// increments the connection count for an IP address
func (h *Hub) TrackIPConnection(ipAddress string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipConnections[ipAddress]++
}

// notifies the clients of a deleted session and disconnects them
func (h *Hub) EndSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionClients, exists := h.sessions[sessionID]
	if !exists {
		return
	}

	msg, err := NewMessage(TypeSessionDeleted, sessionID, nil)
	if err == nil {
		h.broadcastToSession(sessionID, msg, "")
	}

	// closing the send channel lets WritePump flush what is queued first
	for _, client := range sessionClients {
		client.Close()
		h.untrackLocked(client)
	}

	delete(h.sessions, sessionID)
	delete(h.sessionSequences, sessionID)

	logger.Info("session deleted, clients disconnected",
		"session_id", sessionID,
		"client_count", len(sessionClients),
	)
}
