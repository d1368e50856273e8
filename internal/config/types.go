package config

import "time"

// settings of the persistence and generation service
type ServerConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"720h"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
	RateLimit      string   `envconfig:"RATE_LIMIT" default:"300-M"`

	AnthropicKey       string  `envconfig:"ANTHROPIC_API_KEY"`
	GeneratorModel     string  `envconfig:"GENERATOR_MODEL" default:"claude-sonnet-4-20250514"`
	GeneratorMaxTokens int     `envconfig:"GENERATOR_MAX_TOKENS" default:"4096"`
	GeneratorTemp      float32 `envconfig:"GENERATOR_TEMPERATURE" default:"0.7"`

	FlushInterval   time.Duration `envconfig:"DRAFT_FLUSH_INTERVAL" default:"5s"`
	CleanupInterval time.Duration `envconfig:"ORPHAN_CLEANUP_INTERVAL" default:"1h"`
	OrphanRetention time.Duration `envconfig:"ORPHAN_RETENTION" default:"24h"`
}

// settings of one authorctl process
type ClientConfig struct {
	APIURL  string `envconfig:"COURSEPILOT_API" default:"http://localhost:8080"`
	Token   string `envconfig:"COURSEPILOT_TOKEN"`
	DataDir string `envconfig:"COURSEPILOT_DATA_DIR"`
	Offline bool   `envconfig:"COURSEPILOT_OFFLINE" default:"false"`

	Debounce       time.Duration `envconfig:"COURSEPILOT_DEBOUNCE" default:"1s"`
	PollInterval   time.Duration `envconfig:"COURSEPILOT_POLL_INTERVAL" default:"2s"`
	RequestTimeout time.Duration `envconfig:"COURSEPILOT_REQUEST_TIMEOUT" default:"15s"`
	DraftLimit     int           `envconfig:"COURSEPILOT_DRAFT_LIMIT" default:"300"`
	StorageQuota   int64         `envconfig:"COURSEPILOT_STORAGE_QUOTA" default:"5242880"`
}

func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

func (c *ServerConfig) GenerationEnabled() bool {
	return c.AnthropicKey != ""
}
