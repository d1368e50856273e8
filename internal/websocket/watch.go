package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"codeberg.org/coursepilot/server/internal/logger"
)

// subscribes to the notifications of one session from the client side
type Watcher struct {
	// http(s) base URL of the API, as used by the REST gateway
	BaseURL string
	Token   string

	// reconnect delay after the connection drops
	Backoff time.Duration

	Dialer *websocket.Dialer
}

// builds the ws(s) URL of the notification endpoint
func (w *Watcher) endpoint(sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(w.BaseURL, "/") + "/api/v1/ws")
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// delivers every notification of sessionID to fn until ctx is done,
// reconnecting when the connection drops; returns when the session is
// deleted
func (w *Watcher) Watch(ctx context.Context, sessionID string, fn func(*Message)) error {
	endpoint, err := w.endpoint(sessionID)
	if err != nil {
		return err
	}

	backoff := w.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	for {
		deleted, err := w.watchOnce(ctx, endpoint, fn)
		if deleted || ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Debug("notification stream dropped", "session_id", sessionID, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (w *Watcher) watchOnce(ctx context.Context, endpoint string, fn func(*Message)) (bool, error) {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	if w.Token != "" {
		header.Set("Authorization", "Bearer "+w.Token)
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return false, err
	}
	defer conn.Close() //nolint:errcheck

	// unblock ReadMessage when ctx ends
	stop := context.AfterFunc(ctx, func() { conn.Close() }) //nolint:errcheck,gosec
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return false, err
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("ignoring malformed notification", "error", err)
			continue
		}

		fn(&msg)

		switch msg.Type {
		case TypeSessionDeleted:
			return true, nil
		case TypeServerShutdown:
			return false, nil
		}
	}
}
