package web

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/energy-linkage/internal/config"
)

// Config represents the review server configuration
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Auth     AuthConfig    `yaml:"auth"`
	Features FeatureConfig `yaml:"features"`
	// ModelPath, when set, is loaded to explain pair confidences.
	ModelPath string `yaml:"model_path"`
	Debug     bool   `yaml:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	// ReadOpen lets GET requests through without a key.
	ReadOpen bool `yaml:"read_open"`
}

// FeatureConfig contains feature toggles
type FeatureConfig struct {
	ManualOverrideEnabled bool `yaml:"manual_override_enabled"`
	MetricsEnabled        bool `yaml:"metrics_enabled"`
}

// LoadConfig reads a YAML (or JSON) file over the defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays LINKER_WEB_* environment variables.
func (c *Config) ApplyEnv() {
	c.Server.Host = config.GetEnv("LINKER_WEB_HOST", c.Server.Host)
	c.Server.Port = config.GetEnvInt("LINKER_WEB_PORT", c.Server.Port)
	c.Auth.APIKey = config.GetEnv("LINKER_WEB_API_KEY", c.Auth.APIKey)
	c.Auth.Enabled = config.GetEnvBool("LINKER_WEB_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.ReadOpen = config.GetEnvBool("LINKER_WEB_READ_OPEN", c.Auth.ReadOpen)
	c.Features.ManualOverrideEnabled = config.GetEnvBool("LINKER_WEB_OVERRIDES_ENABLED", c.Features.ManualOverrideEnabled)
}

// Validate checks port range and that auth has a key.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth is enabled but no api_key is set")
	}
	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Features: FeatureConfig{
			ManualOverrideEnabled: true,
			MetricsEnabled:        true,
		},
	}
}
