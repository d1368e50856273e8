package websocket

import (
	"context"
	"net/http"
	"time"
)

type OriginCheck func(r *http.Request) bool

// resolves who owns a session; satisfied by the session repository
type OwnerLookup interface {
	SessionOwner(ctx context.Context, sessionID string) (string, error)
}

type ConnectParams struct {
	SessionID string `form:"session_id" binding:"required"`
}

// how long the ownership lookup may take before the upgrade is refused
const ownerLookupTimeout = 10 * time.Second
