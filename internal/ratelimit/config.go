package ratelimit

import "strings"

// holds rate limiting configuration
type Config struct {
	// whether limiting is active
	Enabled bool

	// limiter rate in ulule's formatted notation, e.g. "300-M"
	Rate string

	// prefix of the counters in redis
	Prefix string

	// paths that bypass limiting (health checks, metrics)
	ExemptPaths []string
}

func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Rate:    "300-M",
		Prefix:  "coursepilot:limiter",
		ExemptPaths: []string{
			"/health",
			"/ready",
			"/metrics",
		},
	}
}

func (c *Config) IsExemptPath(path string) bool {
	for _, exempt := range c.ExemptPaths {
		if path == exempt || strings.HasPrefix(path, exempt+"/") {
			return true
		}
	}
	return false
}
