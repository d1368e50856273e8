package main

import (
	"context"
	"time"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/tab"
	"codeberg.org/coursepilot/server/internal/tui"
	ws "codeberg.org/coursepilot/server/internal/websocket"
)

// originOf reads the writer's client id out of a save notification.
func originOf(msg *ws.Message) string {
	var payload struct {
		Origin string `json:"origin"`
	}
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return ""
	}
	return payload.Origin
}

// follows the notifications of whichever session is active, refreshing
// the tab when another client saved it
func watchActive(ctx context.Context, t *tab.Tab, w *ws.Watcher, clientID string, poll time.Duration, out chan<- tui.RemoteChangeMsg) {
	if poll <= 0 {
		poll = 2 * time.Second
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var (
		watching string
		stop     context.CancelFunc = func() {}
	)
	defer func() { stop() }()

	for {
		id := t.Tracker().SessionID()
		if id != watching {
			stop()
			watching = id

			if id != "" && !authoring.IsTemporaryID(id) {
				var watchCtx context.Context
				watchCtx, stop = context.WithCancel(ctx)
				go func(sessionID string) {
					err := w.Watch(watchCtx, sessionID, func(msg *ws.Message) {
						handleNotification(watchCtx, t, clientID, msg, out)
					})
					if err != nil && watchCtx.Err() == nil {
						logger.Debug("stopped watching session", "session_id", sessionID, "error", err)
					}
				}(id)
			} else {
				stop = func() {}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func handleNotification(ctx context.Context, t *tab.Tab, clientID string, msg *ws.Message, out chan<- tui.RemoteChangeMsg) {
	switch msg.Type {
	case ws.TypeSessionSaved, ws.TypeDraftSaved, ws.TypeSessionRenamed:
	default:
		return
	}

	if originOf(msg) == clientID {
		return
	}

	reloaded, err := t.Refresh(ctx)
	if err != nil {
		logger.Warn("failed to refresh after remote save", "session_id", msg.SessionID, "error", err)
		return
	}
	if !reloaded {
		return
	}

	select {
	case out <- tui.RemoteChangeMsg{SessionID: msg.SessionID}:
	default:
	}
}
