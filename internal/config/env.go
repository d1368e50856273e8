package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const appDir = "coursepilot"

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}
}

// loads server configuration from .env and the environment
func LoadServer() (*ServerConfig, error) {
	loadDotEnv()

	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}

	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("DRAFT_FLUSH_INTERVAL must be positive")
	}

	return &cfg, nil
}

// loads client configuration from .env and the environment
func LoadClient() (*ClientConfig, error) {
	loadDotEnv()

	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}

	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}

	return &cfg, nil
}

// $XDG_DATA_HOME/coursepilot, falling back to ~/.local/share/coursepilot
func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", appDir), nil
}

// path of the tab storage database shared by every tab of the profile
func (c *ClientConfig) StorePath() string {
	return filepath.Join(c.DataDir, "tabs.db")
}
