package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "emigration.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "emigrants", cfg.Store.Collection)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 2.0, cfg.Server.UploadRPS, 0.001)
	assert.Equal(t, 30*time.Second, cfg.Sync.PollInterval())
	assert.InDelta(t, 0.2, cfg.Schema.CategoryMaxRatio, 0.001)
	assert.Equal(t, 50, cfg.Schema.CategoryMaxUnique)
	assert.Equal(t, 10, cfg.Schema.CategoryMinSample)
	assert.Equal(t, 1900, cfg.Schema.YearMin)
	assert.Equal(t, 2100, cfg.Schema.YearMax)
	assert.Equal(t, "viewer", cfg.Auth.DefaultRole)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout())
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, "emigration-stats/1.0", cfg.Fetch.UserAgent)
	assert.InDelta(t, 3.0, cfg.Notion.RateLimit, 0.001)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/stats
log:
  level: debug
  format: console
server:
  port: 9090
schema:
  category_max_ratio: 0.3
  year_min: 1950
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/stats", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.3, cfg.Schema.CategoryMaxRatio, 0.001)
	assert.Equal(t, 1950, cfg.Schema.YearMin)
	// Defaults still apply for unset values
	assert.Equal(t, 2100, cfg.Schema.YearMax)
	assert.Equal(t, "emigrants", cfg.Store.Collection)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("EMIGRATION_STORE_DRIVER", "memory")
	t.Setenv("EMIGRATION_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("EMIGRATION_SERVER_PORT", "3000")
	t.Setenv("EMIGRATION_NOTION_TOKEN", "ntn_token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "ntn_token", cfg.Notion.Token)
}

func TestLoadInvalidFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Collection = "emigrants"
	cfg.Schema.YearMin = 1900
	cfg.Schema.YearMax = 2100
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"memory driver", func(c *Config) { c.Store.Driver = "memory" }, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "unsupported store driver: mongo"},
		{"notion without token", func(c *Config) { c.Store.Driver = "notion" }, "notion token is required"},
		{"notion without database", func(c *Config) {
			c.Store.Driver = "notion"
			c.Notion.Token = "ntn_token"
		}, "notion database ID is required"},
		{"notion complete", func(c *Config) {
			c.Store.Driver = "notion"
			c.Notion.Token = "ntn_token"
			c.Notion.DatabaseID = "db-1"
		}, ""},
		{"no collection", func(c *Config) { c.Store.Collection = "" }, "collection is required"},
		{"inverted years", func(c *Config) { c.Schema.YearMin = 2100; c.Schema.YearMax = 1900 }, "is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
