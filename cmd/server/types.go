package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"codeberg.org/coursepilot/server/coursepilot/sessions"
	"codeberg.org/coursepilot/server/internal/agent"
	"codeberg.org/coursepilot/server/internal/auth"
	"codeberg.org/coursepilot/server/internal/buffer"
	"codeberg.org/coursepilot/server/internal/config"
	"codeberg.org/coursepilot/server/internal/metrics"
	"codeberg.org/coursepilot/server/internal/ratelimit"
	ws "codeberg.org/coursepilot/server/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

// holds all dependencies and state for the API server
type Server struct {
	db             *pgxpool.Pool
	config         *config.ServerConfig
	sessionRepo    *buffer.BufferedRepository
	signer         *auth.Signer
	agent          *agent.Agent // nil when generation is disabled
	metrics        *metrics.Metrics
	limiter        *ratelimit.Limiter
	hub            *ws.Hub
	router         *gin.Engine
	buffer         *buffer.DraftBuffer
	flusher        *buffer.Flusher
	cleanupService *sessions.CleanupService
}
