package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/emigration-stats/internal/schema"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig       `yaml:"store" mapstructure:"store"`
	Notion NotionConfig      `yaml:"notion" mapstructure:"notion"`
	Server ServerConfig      `yaml:"server" mapstructure:"server"`
	Log    LogConfig         `yaml:"log" mapstructure:"log"`
	Sync   SyncConfig        `yaml:"sync" mapstructure:"sync"`
	Schema schema.Heuristics `yaml:"schema" mapstructure:"schema"`
	Auth   AuthConfig        `yaml:"auth" mapstructure:"auth"`
	Fetch  FetchConfig       `yaml:"fetch" mapstructure:"fetch"`
}

// StoreConfig configures the record store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Collection  string `yaml:"collection" mapstructure:"collection"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// NotionConfig holds Notion API credentials for the "notion" store driver.
type NotionConfig struct {
	Token      string  `yaml:"token" mapstructure:"token"`
	DatabaseID string  `yaml:"database_id" mapstructure:"database_id"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	UploadRPS   float64  `yaml:"upload_rps" mapstructure:"upload_rps"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SyncConfig configures how often the store feed polls for remote changes.
type SyncConfig struct {
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
}

// PollInterval returns the poll interval as a duration.
func (c SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// AuthConfig configures role resolution.
type AuthConfig struct {
	DefaultRole string `yaml:"default_role" mapstructure:"default_role"`
	RolesFile   string `yaml:"roles_file" mapstructure:"roles_file"`
}

// FetchConfig configures remote file downloads.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	HostRPS     float64 `yaml:"host_rps" mapstructure:"host_rps"`
}

// Timeout returns the download timeout as a duration.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EMIGRATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	h := schema.DefaultHeuristics()
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "emigration.db")
	v.SetDefault("store.collection", "emigrants")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("notion.rate_limit", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.upload_rps", 2)
	v.SetDefault("sync.poll_interval_secs", 30)
	v.SetDefault("schema.category_max_ratio", h.CategoryMaxRatio)
	v.SetDefault("schema.category_max_unique", h.CategoryMaxUnique)
	v.SetDefault("schema.category_min_sample", h.CategoryMinSample)
	v.SetDefault("schema.year_min", h.YearMin)
	v.SetDefault("schema.year_max", h.YearMax)
	v.SetDefault("auth.default_role", "viewer")
	v.SetDefault("auth.roles_file", "")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "emigration-stats/1.0")
	v.SetDefault("fetch.host_rps", 1)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	case "notion":
		if c.Notion.Token == "" {
			return eris.New("config: notion token is required (EMIGRATION_NOTION_TOKEN)")
		}
		if c.Notion.DatabaseID == "" {
			return eris.New("config: notion database ID is required (EMIGRATION_NOTION_DATABASE_ID)")
		}
	default:
		return eris.Errorf("config: unsupported store driver: %s", c.Store.Driver)
	}
	if c.Store.Collection == "" {
		return eris.New("config: store collection is required")
	}
	if c.Schema.YearMin > c.Schema.YearMax {
		return eris.Errorf("config: schema year range [%d, %d] is empty", c.Schema.YearMin, c.Schema.YearMax)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
