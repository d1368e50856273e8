package generate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/coursepilot/server/internal/auth"
	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/gateway"
	"codeberg.org/coursepilot/server/internal/metrics"
)

type fakeGenerator struct {
	resp *gateway.GenerateResponse
	err  error
	got  []gateway.GenerateRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req gateway.GenerateRequest) (*gateway.GenerateResponse, error) {
	g.got = append(g.got, req)
	if g.err != nil {
		return nil, g.err
	}
	return g.resp, nil
}

type owners map[string]string

func (o owners) SessionOwner(_ context.Context, sessionID string) (string, error) {
	owner, ok := o[sessionID]
	if !ok {
		return "", fmt.Errorf("session owner: %w", authoring.ErrNotFound)
	}
	return owner, nil
}

const ownedSession = "5a2b8f0e-6c1d-4e7a-9b3f-2d4c6e8a0b1c"

func setup(t *testing.T, gen *fakeGenerator) (*httptest.Server, *auth.Signer, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := auth.NewSigner("test-secret", time.Hour)
	require.NoError(t, err)
	m := metrics.New(nil)

	router := gin.New()
	RegisterRoutes(router.Group("/api/v1"), gen, owners{ownedSession: "author-1"}, m, signer.Middleware())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, signer, m
}

func client(t *testing.T, srv *httptest.Server, signer *auth.Signer, userID string) *gateway.RESTClient {
	t.Helper()
	token, err := signer.Generate(userID, userID+"@example.com")
	require.NoError(t, err)
	return gateway.NewRESTClient(gateway.RESTOptions{BaseURL: srv.URL, Token: token})
}

func TestGenerateThroughGateway(t *testing.T) {
	gen := &fakeGenerator{resp: &gateway.GenerateResponse{
		Message:      "Added a section.",
		UpdatedDraft: &authoring.CourseStructure{Title: "Go", Sections: []authoring.Section{{Title: "Intro", Lessons: []authoring.Lesson{}}}},
	}}
	srv, signer, m := setup(t, gen)

	resp, err := client(t, srv, signer, "author-1").Generate(context.Background(), gateway.GenerateRequest{
		SessionID: ownedSession,
		Message:   "  add an intro section ",
		Transcript: []authoring.Message{
			{Role: authoring.RoleUser, Content: "make a go course"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Added a section.", resp.Message)
	require.NotNil(t, resp.UpdatedDraft)
	assert.Equal(t, "Intro", resp.UpdatedDraft.Sections[0].Title)

	require.Len(t, gen.got, 1)
	assert.Equal(t, "add an intro section", gen.got[0].Message)
	assert.Len(t, gen.got[0].Transcript, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("ok")))
}

func TestGenerateRejections(t *testing.T) {
	gen := &fakeGenerator{resp: &gateway.GenerateResponse{Message: "hi"}}
	srv, signer, _ := setup(t, gen)

	token, err := signer.Generate("author-1", "a@example.com")
	require.NoError(t, err)
	otherToken, err := signer.Generate("author-2", "b@example.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		body   string
		status int
	}{
		{"no token", "", `{"message":"hi"}`, http.StatusUnauthorized},
		{"empty message", token, `{"message":"   "}`, http.StatusBadRequest},
		{"malformed body", token, `{"message":`, http.StatusBadRequest},
		{"too long", token, `{"message":"` + strings.Repeat("a", maxMessageLength+1) + `"}`, http.StatusBadRequest},
		{"unknown session", token, `{"session_id":"00000000-0000-4000-8000-000000000000","message":"hi"}`, http.StatusNotFound},
		{"someone else's session", otherToken, `{"session_id":"` + ownedSession + `","message":"hi"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}

			w := httptest.NewRecorder()
			srv.Config.Handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	assert.Empty(t, gen.got)
}

func TestGenerateProviderFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"transient", fmt.Errorf("anthropic: %w", authoring.ErrTransientIO), http.StatusServiceUnavailable},
		{"permanent", fmt.Errorf("anthropic: bad request"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, signer, m := setup(t, &fakeGenerator{err: tt.err})
			token, err := signer.Generate("author-1", "a@example.com")
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(`{"message":"hi"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)

			w := httptest.NewRecorder()
			srv.Config.Handler.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("error")))
		})
	}
}
