package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/coursepilot/server/internal/config"
	"codeberg.org/coursepilot/server/internal/logger"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(cfg, os.Args[2:], os.Stdout); err != nil {
			logger.Fatal("failed to issue token", "error", err)
		}
		return
	}

	if err := run(cfg, config.ParseServerFlags(os.Args[1:], cfg)); err != nil {
		logger.Fatal("server stopped with error", "error", err)
	}
}

// serves until SIGINT or SIGTERM, then drains in dependency order
func run(cfg *config.ServerConfig, flags config.ServerFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting coursepilot server", "environment", cfg.Environment)

	srv, err := NewServer(ctx, cfg, flags.Migrate)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := srv.httpServer(flags.Port)
	listenErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", flags.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	srv.Start(ctx)

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-listenErr:
		srv.Shutdown(httpServer)
		return fmt.Errorf("server failed to start: %w", err)
	}

	srv.Shutdown(httpServer)
	logger.Info("server stopped")
	return nil
}
