package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/coursepilot/server/internal/auth"
	"codeberg.org/coursepilot/server/internal/authoring"
	ws "codeberg.org/coursepilot/server/internal/websocket"
)

const sessionID = "6f1d0b5e-0a8c-4b36-9d1e-6a4fd0c8e2a1"

type owners map[string]string

func (o owners) SessionOwner(_ context.Context, id string) (string, error) {
	owner, ok := o[id]
	if !ok {
		return "", authoring.ErrNotFound
	}
	return owner, nil
}

func setup(t *testing.T) (*ws.Hub, *httptest.Server, *auth.Signer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := auth.NewSigner("test-secret", time.Hour)
	require.NoError(t, err)

	hub := ws.NewHub(nil)
	go hub.Run()
	t.Cleanup(func() {
		hub.Shutdown()
		hub.Wait()
	})

	router := gin.New()
	RegisterRoutes(router.Group("/api/v1"), hub, owners{sessionID: "author-1"}, signer.Middleware(), ws.CheckOrigin(nil, false))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, srv, signer
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?" + query
}

func TestOwnerReceivesSaveNotifications(t *testing.T) {
	hub, srv, signer := setup(t)

	token, err := signer.Generate("author-1", "")
	require.NoError(t, err)

	conn, resp, err := gorilla.DefaultDialer.Dial(wsURL(srv, "session_id="+sessionID+"&token="+token), nil)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return hub.ClientCount(sessionID) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Notify(sessionID, ws.TypeSessionSaved, ws.SessionSavedPayload{SavedAt: time.Now(), Origin: "tab-1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.TypeSessionSaved, msg.Type)
	assert.Equal(t, sessionID, msg.SessionID)

	// keepalive round trip
	require.NoError(t, conn.WriteJSON(ws.Message{Type: ws.TypePing}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.TypePong, msg.Type)
}

func TestConnectRejections(t *testing.T) {
	_, srv, signer := setup(t)

	owner, err := signer.Generate("author-1", "")
	require.NoError(t, err)
	stranger, err := signer.Generate("author-2", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"no token", "session_id=" + sessionID, http.StatusUnauthorized},
		{"missing session", "token=" + owner, http.StatusBadRequest},
		{"malformed session", "session_id=abc&token=" + owner, http.StatusBadRequest},
		{"unknown session", "session_id=1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed&token=" + owner, http.StatusNotFound},
		{"other author", "session_id=" + sessionID + "&token=" + stranger, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := gorilla.DefaultDialer.Dial(wsURL(srv, tt.query), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
