// Package config loads the process's typed, env-driven configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds the process-level configuration. Per-actor configuration
// (log sink rotation limits, TCP client reconnect periods, UDP bind port)
// lives on the actor types themselves and is set pre-start; this struct only
// carries the values used to construct that pre-start configuration.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	TCPListenAddr     string        `env:"TCP_LISTEN_ADDR" envDefault:":9000"`
	TCPClientTargets  string        `env:"TCP_CLIENT_TARGETS" envDefault:""`
	MetricsAddr       string        `env:"METRICS_ADDR" envDefault:":9090"`

	LogSinkDir      string `env:"LOG_SINK_DIR" envDefault:""`
	LogSinkPrefix   string `env:"LOG_SINK_PREFIX" envDefault:""`
	LogSinkMaxLine  int    `env:"LOG_SINK_MAX_LINE" envDefault:"1000"`
	LogSinkMaxFiles int    `env:"LOG_SINK_MAX_FILES" envDefault:"10"`

	RateLimitIPBurst     int     `env:"RATE_LIMIT_IP_BURST" envDefault:"10"`
	RateLimitIPRate      float64 `env:"RATE_LIMIT_IP_RATE" envDefault:"1.0"`
	RateLimitGlobalBurst int     `env:"RATE_LIMIT_GLOBAL_BURST" envDefault:"300"`
	RateLimitGlobalRate  float64 `env:"RATE_LIMIT_GLOBAL_RATE" envDefault:"50.0"`

	ResourceMaxGoroutines    int     `env:"RESOURCE_MAX_GOROUTINES" envDefault:"10000"`
	ResourceMaxRSSFraction   float64 `env:"RESOURCE_MAX_RSS_FRACTION" envDefault:"0.85"`

	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	NATSURL string `env:"NATS_URL" envDefault:""`
}

// Load reads configuration from an optional .env file (outside production)
// and environment variables, then validates it. Priority: env vars > .env
// file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	cfg := &Config{}

	// A first pass just to learn ENVIRONMENT before deciding whether to load
	// .env; caarlos0/env lets us parse twice cheaply.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Environment != "production" {
		if err := godotenv.Load(); err != nil && logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
		cfg = &Config{}
		if err := env.Parse(cfg); err != nil {
			return nil, fmt.Errorf("parse environment after .env load: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// TCPClientAddrs splits TCPClientTargets on commas, trimming whitespace and
// dropping empty entries.
func (c *Config) TCPClientAddrs() []string {
	if c.TCPClientTargets == "" {
		return nil
	}
	parts := strings.Split(c.TCPClientTargets, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.TCPListenAddr == "" {
		return fmt.Errorf("TCP_LISTEN_ADDR is required")
	}
	if c.LogSinkMaxLine < 1 {
		return fmt.Errorf("LOG_SINK_MAX_LINE must be > 0, got %d", c.LogSinkMaxLine)
	}
	if c.LogSinkMaxFiles < 1 {
		return fmt.Errorf("LOG_SINK_MAX_FILES must be > 0, got %d", c.LogSinkMaxFiles)
	}
	if c.ResourceMaxRSSFraction <= 0 || c.ResourceMaxRSSFraction > 1 {
		return fmt.Errorf("RESOURCE_MAX_RSS_FRACTION must be in (0,1], got %.2f", c.ResourceMaxRSSFraction)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug/info/warn/error/fatal, got %q", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of json/pretty, got %q", c.LogFormat)
	}
	return nil
}

// LogConfig emits the loaded configuration as a single structured line.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("tcp_listen_addr", c.TCPListenAddr).
		Str("metrics_addr", c.MetricsAddr).
		Str("log_sink_dir", c.LogSinkDir).
		Int("log_sink_max_line", c.LogSinkMaxLine).
		Int("log_sink_max_files", c.LogSinkMaxFiles).
		Int("rate_limit_global_burst", c.RateLimitGlobalBurst).
		Float64("rate_limit_global_rate", c.RateLimitGlobalRate).
		Int("resource_max_goroutines", c.ResourceMaxGoroutines).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
