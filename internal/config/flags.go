package config

import (
	"flag"
	"time"
)

type ServerFlags struct {
	Port    string
	Migrate bool
}

// parses CLI flags for the server binary; flags override the environment
func ParseServerFlags(args []string, cfg *ServerConfig) ServerFlags {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	port := fs.String("port", cfg.Port, "port to listen on")
	migrate := fs.Bool("migrate", false, "create tables before serving")
	flush := fs.Duration("flush-interval", cfg.FlushInterval, "how often buffered drafts are written to postgres")
	fs.Parse(args) //nolint:errcheck,gosec // G104: ExitOnError flag set handles errors

	cfg.Port = *port
	if *flush > 0 {
		cfg.FlushInterval = *flush
	}

	return ServerFlags{Port: *port, Migrate: *migrate}
}

// returns client defaults for offline use without an environment
func DefaultClient() *ClientConfig {
	return &ClientConfig{
		APIURL:         "http://localhost:8080",
		Offline:        true,
		Debounce:       time.Second,
		PollInterval:   2 * time.Second,
		RequestTimeout: 15 * time.Second,
		DraftLimit:     300,
		StorageQuota:   5 << 20,
	}
}
