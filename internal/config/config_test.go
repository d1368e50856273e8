package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envconfig treats a set but empty variable as a value, so clear them
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadServerRequiresSecrets(t *testing.T) {
	unsetenv(t, "DATABASE_URL", "REDIS_URL", "JWT_SECRET")

	_, err := LoadServer()
	assert.Error(t, err)
}

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/coursepilot")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
	unsetenv(t, "DRAFT_FLUSH_INTERVAL", "PORT", "ANTHROPIC_API_KEY", "ORPHAN_RETENTION")

	cfg, err := LoadServer()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, 24*time.Hour, cfg.OrphanRetention)
	assert.False(t, cfg.GenerationEnabled())
}

func TestParseServerFlagsOverrides(t *testing.T) {
	cfg := &ServerConfig{Port: "8080", FlushInterval: 5 * time.Second}

	flags := ParseServerFlags([]string{"-port", "9090", "-migrate", "-flush-interval", "2s"}, cfg)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, flags.Migrate)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
}

func TestLoadClientDataDir(t *testing.T) {
	dir := t.TempDir()
	unsetenv(t, "COURSEPILOT_DATA_DIR", "COURSEPILOT_DRAFT_LIMIT")
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("COURSEPILOT_DEBOUNCE", "250ms")

	cfg, err := LoadClient()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "coursepilot"), cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "coursepilot", "tabs.db"), cfg.StorePath())
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 300, cfg.DraftLimit)
}
