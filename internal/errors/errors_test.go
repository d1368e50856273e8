package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/coursepilot/server/internal/authoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(t *testing.T, fn func(c *gin.Context)) (int, ErrorResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/x", nil)
	fn(c)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestFromServiceMapsSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("load session: %w", authoring.ErrNotFound), http.StatusNotFound, CodeSessionNotFound},
		{"conflict", authoring.ErrIdentityConflict, http.StatusConflict, CodeConflict},
		{"transient", fmt.Errorf("redis: %w", authoring.ErrTransientIO), http.StatusServiceUnavailable, CodeUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, CodeUnavailable},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := respond(t, func(c *gin.Context) { FromService(c, "failed", tt.err) })
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestSanitizedInProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	_, body := respond(t, func(c *gin.Context) {
		InternalError(c, "failed to save session", fmt.Errorf("query authoring_sessions: %w", pgx.ErrNoRows))
	})
	assert.Equal(t, "resource not found", body.Details)

	_, body = respond(t, func(c *gin.Context) {
		BadRequest(c, "", fmt.Errorf("dial tcp 10.0.0.3:5432: connection refused"))
	})
	assert.Equal(t, "connection error occurred", body.Details)
}

func TestDetailsInDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	_, body := respond(t, func(c *gin.Context) {
		ValidationError(c, fmt.Errorf("key: invalid draft key"))
	})
	assert.Equal(t, CodeValidationError, body.Error)
	assert.Equal(t, "key: invalid draft key", body.Details)
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("6f1d0b5e-0a8c-4b36-9d1e-6a4fd0c8e2a1"))
	assert.False(t, IsValidUUID("tmp-6f1d0b5e-0a8c-4b36-9d1e-6a4fd0c8e2a1"))
	assert.False(t, IsValidUUID("{6f1d0b5e-0a8c-4b36-9d1e-6a4fd0c8e2a1}"))
	assert.False(t, IsValidUUID(""))
}
