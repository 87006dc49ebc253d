// Package config provides the configuration structure for the tts-gateway.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Configuration defaults applied after load.
const (
	DefaultPort           = 8888
	DefaultTimeoutSeconds = 300
	DefaultRuntimeURL     = "http://localhost:8000"
	DefaultWarmupText     = "हैलो"
)

// HTTPConfig holds the serving boundary configuration.
type HTTPConfig struct {
	Port int `toml:"port"`
}

// EngineConfig holds the inference runtime configuration.
type EngineConfig struct {
	RuntimeURL     string `toml:"runtime_url"`
	ModelName      string `toml:"model_name"`
	WarmupText     string `toml:"warmup_text"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NATSConfig holds the configuration for the NATS job transport.
type NATSConfig struct {
	URL              string `toml:"url"`
	SynthesisSubject string `toml:"synthesis_subject"`
	Enabled          bool   `toml:"enabled"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	HTTP   HTTPConfig   `toml:"http"`
	Engine EngineConfig `toml:"engine"`
	NATS   NATSConfig   `toml:"nats"`
	Paths  PathsConfig  `toml:"paths"`
}

// Load loads the configuration for the tts-gateway and applies defaults for
// any omitted fields.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = DefaultPort
	}

	if c.Engine.RuntimeURL == "" {
		c.Engine.RuntimeURL = DefaultRuntimeURL
	}

	if c.Engine.WarmupText == "" {
		c.Engine.WarmupText = DefaultWarmupText
	}

	if c.Engine.TimeoutSeconds <= 0 {
		c.Engine.TimeoutSeconds = DefaultTimeoutSeconds
	}
}
