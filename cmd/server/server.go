package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"codeberg.org/coursepilot/server/coursepilot/sessions"
	"codeberg.org/coursepilot/server/internal/agent"
	"codeberg.org/coursepilot/server/internal/auth"
	"codeberg.org/coursepilot/server/internal/buffer"
	"codeberg.org/coursepilot/server/internal/config"
	"codeberg.org/coursepilot/server/internal/llm"
	"codeberg.org/coursepilot/server/internal/logger"
	"codeberg.org/coursepilot/server/internal/metrics"
	"codeberg.org/coursepilot/server/internal/ratelimit"
	ws "codeberg.org/coursepilot/server/internal/websocket"
)

// creates and configures a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.ServerConfig, migrate bool) (*Server, error) {
	db, err := connectDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err := sessions.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("database schema migrated")
	}

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}

	m := metrics.New(nil)
	postgresSessionRepo := sessions.NewRepository(db)

	// initialize Redis buffer for draft writes
	draftBuffer, err := buffer.Connect(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize redis buffer: %w", err)
	}

	// wrap session repo with buffering layer (draft writes go to Redis, reads merge both)
	sessionRepo := buffer.NewBufferedRepository(postgresSessionRepo, draftBuffer, m)

	// create flusher to periodically persist buffered drafts to Postgres
	flusher := buffer.NewFlusher(draftBuffer, postgresSessionRepo, cfg.FlushInterval, m)

	limiterConfig := ratelimit.DefaultConfig()
	limiterConfig.Rate = cfg.RateLimit
	limiter, err := ratelimit.New(limiterConfig, draftBuffer.Client())
	if err != nil {
		draftBuffer.Close() //nolint:errcheck,gosec // best-effort cleanup on init failure
		db.Close()
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	var authoringAgent *agent.Agent
	if cfg.GenerationEnabled() {
		provider, err := llm.NewAnthropic(llm.ConfigFromServer(cfg))
		if err != nil {
			draftBuffer.Close() //nolint:errcheck,gosec // best-effort cleanup on init failure
			db.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		authoringAgent = agent.New(provider)
		logger.Info("generation enabled", "model", authoringAgent.Model())
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, generation disabled")
	}

	hub := ws.NewHub(m)

	// create orphan draft cleanup service (postgres repo directly, the buffer only holds fresh drafts)
	cleanupService := sessions.NewCleanupService(
		postgresSessionRepo,
		cfg.CleanupInterval,
		cfg.OrphanRetention,
		func(n int) {
			m.OrphansRemoved.Add(float64(n))
		},
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	server := &Server{
		db:             db,
		config:         cfg,
		sessionRepo:    sessionRepo,
		signer:         signer,
		agent:          authoringAgent,
		metrics:        m,
		limiter:        limiter,
		hub:            hub,
		router:         router,
		buffer:         draftBuffer,
		flusher:        flusher,
		cleanupService: cleanupService,
	}

	RegisterRoutes(router, server)

	return server, nil
}

func connectDatabase(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	// poolers in transaction mode do not support prepared statements
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func (s *Server) httpServer(port string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // generation waits on the model
		IdleTimeout:  60 * time.Second,
	}
}

// starts the background workers; they stop when ctx is done or on Shutdown
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run()
	s.flusher.Start()
	go s.cleanupService.Start(ctx)
}

// websocket clients are told first, then in-flight requests finish, then
// the last buffered drafts are flushed before the stores close
func (s *Server) Shutdown(httpServer *http.Server) {
	s.hub.Shutdown()
	s.hub.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	s.flusher.Stop()

	if err := s.buffer.Close(); err != nil {
		logger.Warn("failed to close redis", "error", err)
	}
	s.db.Close()
}
