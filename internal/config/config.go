package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds client settings. Values come from an optional YAML file with
// QS_* environment variables taking precedence over both file and defaults.
type Config struct {
	// BaseURL is the quiz server's REST base URL; the websocket URL is
	// derived from it.
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds every REST call. The stream handshake gets its
	// own, usually shorter, timeout.
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// ReconnectDelay is the fixed wait before the stream reconnects after
	// a failure. No jitter or cap; with many clients recovering from a
	// shared outage at once this herds, tune it if that matters.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:          "http://localhost:8080",
		RequestTimeout:   15 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReconnectDelay:   5 * time.Second,
	}
}

// Load reads a YAML config file and applies environment overrides. An empty
// path skips the file and uses defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.BaseURL = getEnv("QS_BASE_URL", cfg.BaseURL)
	cfg.RequestTimeout = getEnvAsDuration("QS_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.HandshakeTimeout = getEnvAsDuration("QS_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout)
	cfg.ReconnectDelay = getEnvAsDuration("QS_RECONNECT_DELAY", cfg.ReconnectDelay)

	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("base_url is required")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
