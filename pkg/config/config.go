// Package config loads CLI and embedding-host configuration for the Passage
// client from a YAML file, with environment variable fallbacks for secrets
// and endpoints.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the client configuration
type Config struct {
	// Credentials
	PublishableKey string `yaml:"publishable_key"`

	// Endpoints
	APIURL    string `yaml:"api_url"`
	SocketURL string `yaml:"socket_url"`
	Namespace string `yaml:"namespace"`

	// Storage
	Storage StorageConfig `yaml:"storage"`

	// Observability
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig selects and configures the result store backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, file, redis
	Dir     string `yaml:"dir"`     // file backend: base directory

	// Redis backend
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisKey      string `yaml:"redis_key"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	LogEvents     bool   `yaml:"log_events"`
	EnableMetrics bool   `yaml:"enable_metrics"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration built purely from environment variables
// and defaults, for hosts that run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if c.PublishableKey == "" {
		c.PublishableKey = os.Getenv("PASSAGE_PUBLISHABLE_KEY")
	}
	if c.APIURL == "" {
		c.APIURL = os.Getenv("PASSAGE_API_URL")
	}
	if c.SocketURL == "" {
		c.SocketURL = os.Getenv("PASSAGE_SOCKET_URL")
	}
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = os.Getenv("PASSAGE_REDIS_ADDR")
	}
}

func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Telemetry.MetricsAddr == "" {
		c.Telemetry.MetricsAddr = ":9090"
	}
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PublishableKey == "" {
		return fmt.Errorf("publishable_key is required")
	}
	switch c.Storage.Backend {
	case "memory", "file":
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}
