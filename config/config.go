package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment override, e.g. SHEETBOARD_DATA_DIR.
const EnvPrefix = "SHEETBOARD"

// Config is the runtime configuration of the dashboard server.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Sources  SourcesConfig  `yaml:"sources" envconfig:"SOURCES"`
	Limits   LimitsConfig   `yaml:"limits" envconfig:"LIMITS"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Features FeaturesConfig `yaml:"features" envconfig:"FEATURES"`
}

// ServerConfig contains transport settings.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	Model           string        `yaml:"model" envconfig:"MODEL"`
}

// SourcesConfig controls where workbooks may be loaded from.
type SourcesConfig struct {
	DataDir     string   `yaml:"data_dir" envconfig:"DATA_DIR"`
	AllowedDirs []string `yaml:"allowed_dirs" envconfig:"ALLOWED_DIRS"`
	Hints       []string `yaml:"hints" envconfig:"HINTS"`
}

// LimitsConfig overrides the guardrails in defaults.go. Zero keeps the default.
type LimitsConfig struct {
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests" envconfig:"MAX_CONCURRENT_REQUESTS"`
	MaxCachedWorkbooks    int           `yaml:"max_cached_workbooks" envconfig:"MAX_CACHED_WORKBOOKS"`
	MaxSessions           int           `yaml:"max_sessions" envconfig:"MAX_SESSIONS"`
	MaxUploadBytes        int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	OperationTimeout      time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT"`
	WorkbookIdleTTL       time.Duration `yaml:"workbook_idle_ttl" envconfig:"WORKBOOK_IDLE_TTL"`
	SessionIdleTTL        time.Duration `yaml:"session_idle_ttl" envconfig:"SESSION_IDLE_TTL"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL"`
}

// FeaturesConfig toggles optional capabilities. Unset toggles are on.
type FeaturesConfig struct {
	EnableEdits *bool `yaml:"enable_edits" envconfig:"ENABLE_EDITS"`
}

// EditsEnabled reports whether edit tools and routes are exposed.
func (f FeaturesConfig) EditsEnabled() bool {
	return f.EnableEdits == nil || *f.EnableEdits
}

// Load reads an optional YAML file named by SHEETBOARD_CONFIG_FILE, then
// applies environment overrides and fills defaults. Defaults are applied after
// both sources so an unset environment variable never masks a file value.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.Model == "" {
		c.Server.Model = DefaultModel
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Sources.DataDir == "" {
		c.Sources.DataDir = DefaultDataDir
	}
	if len(c.Sources.Hints) == 0 {
		c.Sources.Hints = append([]string(nil), DefaultSourceHints...)
	}
	if c.Limits.MaxSessions <= 0 {
		c.Limits.MaxSessions = DefaultMaxSessions
	}
	if c.Limits.MaxUploadBytes <= 0 {
		c.Limits.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Limits.WorkbookIdleTTL <= 0 {
		c.Limits.WorkbookIdleTTL = DefaultWorkbookIdleTTL
	}
	if c.Limits.SessionIdleTTL <= 0 {
		c.Limits.SessionIdleTTL = DefaultSessionIdleTTL
	}
}

func (c *Config) validate() error {
	if c.Limits.MaxConcurrentRequests < 0 || c.Limits.MaxCachedWorkbooks < 0 {
		return fmt.Errorf("config: limits must not be negative")
	}
	if c.Limits.OperationTimeout < 0 {
		return fmt.Errorf("config: operation timeout must not be negative")
	}
	return nil
}
