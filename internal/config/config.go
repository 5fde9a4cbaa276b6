// Package config loads the relay's YAML configuration file and layers
// flag and environment-variable overrides on top of it, following the
// teacher's ApplyEnvironment pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hurzhurz/wg-bridge/internal/relaycore"
)

// Config is the root configuration object.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Groups  []GroupConfig `yaml:"groups"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds the UDP listener's settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReceiveTimeout  time.Duration `yaml:"receive_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GroupConfig is one permission group: the set of public keys (base64)
// whose holders may rendezvous through this relay together.
type GroupConfig struct {
	Keys []string `yaml:"keys"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the admin HTTP surface (metrics + health).
type MetricsConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Addr      string          `yaml:"addr"`
	Path      string          `yaml:"path"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig controls the per-IP limiter guarding the admin surface.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	BanDuration       time.Duration `yaml:"ban_duration"`
	MaxViolations     int           `yaml:"max_violations"`
}

// Default returns configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            51820,
			ReceiveTimeout:  time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				BurstSize:         20,
				CleanupInterval:   10 * time.Minute,
				BanDuration:       1 * time.Hour,
				MaxViolations:     5,
			},
		},
	}
}

// Load reads and parses a YAML config file, starting from Default() so
// unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnvironment overrides config values from RELAY_* environment
// variables, mirroring the teacher's config.ApplyEnvironment.
func (c *Config) ApplyEnvironment() {
	if v := os.Getenv("RELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RELAY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("RELAY_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RELAY_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("RELAY_RATE_LIMIT_ENABLED"); v != "" {
		c.Metrics.RateLimit.Enabled = v == "true" || v == "1"
	}
}

// Keys decodes every configured group into relaycore.PubKey values,
// preserving group boundaries. An error names the offending group index
// and key so a misconfigured deployment fails fast at startup rather
// than silently admitting nobody.
func (c *Config) Keys() ([][]relaycore.PubKey, error) {
	groups := make([][]relaycore.PubKey, 0, len(c.Groups))
	for i, g := range c.Groups {
		keys := make([]relaycore.PubKey, 0, len(g.Keys))
		for _, raw := range g.Keys {
			pk, err := relaycore.DecodePubKey(raw)
			if err != nil {
				return nil, fmt.Errorf("group %d: %w", i, err)
			}
			keys = append(keys, pk)
		}
		groups = append(groups, keys)
	}
	return groups, nil
}
