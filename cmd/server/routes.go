package main

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"codeberg.org/coursepilot/server/api/rest/generate"
	"codeberg.org/coursepilot/server/api/rest/health"
	"codeberg.org/coursepilot/server/api/rest/sessions"
	"codeberg.org/coursepilot/server/api/websocket"
	ws "codeberg.org/coursepilot/server/internal/websocket"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) {
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware(server.config.AllowedOrigins))
	router.Use(server.metrics.Middleware())
	router.Use(server.limiter.Middleware())

	health.RegisterRoutes(router, map[string]health.Check{
		"postgres": server.db.Ping,
		"redis": func(ctx context.Context) error {
			return server.buffer.Client().Ping(ctx).Err()
		},
	})
	router.GET("/metrics", gin.WrapH(server.metrics.Handler()))

	requireAuth := server.signer.Middleware()
	v1 := router.Group("/api/v1")

	{
		v1.GET("/ping", health.PingHandler)

		sessions.RegisterRoutes(v1, server.sessionRepo, server.hub, server.metrics, requireAuth)
		websocket.RegisterRoutes(v1, server.hub, server.sessionRepo, requireAuth,
			ws.CheckOrigin(server.config.AllowedOrigins, server.config.IsProduction()))

		if server.agent != nil {
			generate.RegisterRoutes(v1, server.agent, server.sessionRepo, server.metrics, requireAuth)
		}
	}
}

func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", sessions.ClientIDHeader},
		ExposeHeaders:    []string{"Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
