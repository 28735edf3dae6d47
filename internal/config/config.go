package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models cleanops.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
		DevLogin bool   `yaml:"dev_login"`
	} `yaml:"server"`
	Database struct {
		Path         string        `yaml:"path"`
		BusyTimeout  time.Duration `yaml:"busy_timeout"`
		MaxOpenConns int           `yaml:"max_open_conns"`
	} `yaml:"database"`
	Engine struct {
		RetryAttempts  int           `yaml:"retry_attempts"`
		RetryBackoff   time.Duration `yaml:"retry_backoff"`
		StorageTimeout time.Duration `yaml:"storage_timeout"`
	} `yaml:"engine"`
	Listing struct {
		DefaultLimit int `yaml:"default_limit"`
		MaxLimit     int `yaml:"max_limit"`
	} `yaml:"listing"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one outbound event subscription.
type WebhookConfig struct {
	URL        string        `yaml:"url"`
	Secret     string        `yaml:"secret"`
	EventTypes []string      `yaml:"event_types"`
	Timeout    time.Duration `yaml:"timeout"`
	Enabled    *bool         `yaml:"enabled"`
}

// Load reads and validates config from path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "cleanops.yml")
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("config.database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("config.database.busy_timeout must not be negative")
	}
	if c.Engine.RetryAttempts < 1 {
		return fmt.Errorf("config.engine.retry_attempts must be at least 1")
	}
	if c.Engine.RetryBackoff < 0 {
		return fmt.Errorf("config.engine.retry_backoff must not be negative")
	}
	if c.Engine.StorageTimeout <= 0 {
		return fmt.Errorf("config.engine.storage_timeout must be positive")
	}
	if c.Listing.MaxLimit < 1 {
		return fmt.Errorf("config.listing.max_limit must be at least 1")
	}
	if c.Listing.DefaultLimit < 1 || c.Listing.DefaultLimit > c.Listing.MaxLimit {
		return fmt.Errorf("config.listing.default_limit must be between 1 and max_limit")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("config.log.format must be json or text")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.Timeout < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout must not be negative", i)
		}
	}
	return nil
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Unset keys keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  dev_login: false

database:
  path: .cleanops/cleanops.db
  busy_timeout: 5s
  max_open_conns: 8

engine:
  retry_attempts: 3
  retry_backoff: 25ms
  storage_timeout: 5s

listing:
  default_limit: 50
  max_limit: 200

log:
  level: info
  format: json

webhooks: []
`
