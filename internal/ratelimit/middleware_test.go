package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func router(t *testing.T, l *Limiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/api/v1/sessions", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r *gin.Engine, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLimitPerIP(t *testing.T) {
	config := DefaultConfig()
	config.Rate = "2-M"

	l, err := New(config, nil)
	require.NoError(t, err)
	r := router(t, l)

	assert.Equal(t, http.StatusOK, get(r, "/api/v1/sessions", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/sessions", "10.0.0.1").Code)

	w := get(r, "/api/v1/sessions", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// other clients have their own budget
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/sessions", "10.0.0.2").Code)

	// health checks are never limited
	assert.Equal(t, http.StatusOK, get(r, "/health", "10.0.0.1").Code)
}

func TestLimitSharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck

	config := DefaultConfig()
	config.Rate = "1-M"

	a, err := New(config, client)
	require.NoError(t, err)
	b, err := New(config, client)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(router(t, a), "/api/v1/sessions", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router(t, b), "/api/v1/sessions", "10.0.0.1").Code)
}

func TestDisabled(t *testing.T) {
	config := DefaultConfig()
	config.Rate = "1-M"
	config.Enabled = false

	l, err := New(config, nil)
	require.NoError(t, err)
	r := router(t, l)

	for range 3 {
		assert.Equal(t, http.StatusOK, get(r, "/api/v1/sessions", "10.0.0.1").Code)
	}
}

func TestInvalidRate(t *testing.T) {
	config := DefaultConfig()
	config.Rate = "lots"

	_, err := New(config, nil)
	assert.Error(t, err)
}
