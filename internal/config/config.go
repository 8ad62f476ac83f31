// Package config loads the relay's process configuration from environment
// variables (optionally seeded from a .env file), the same pattern the
// teacher's ws/config.go uses.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"signalrelay/internal/apperr"
)

// Config holds every environment-sourced setting for the relay process.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
type Config struct {
	// Required (§6), except TELEGRAB_HTTP_URL, which is optional
	DatabaseURL     string `env:"DATABASE_URL"`
	AdminMasterKey  string `env:"ADMIN_MASTER_KEY"`
	UpstreamWSURL   string `env:"TELEGRAB_WS_URL"`
	UpstreamAPIKey  string `env:"TELEGRAB_API_KEY"`
	UpstreamHTTPURL string `env:"TELEGRAB_HTTP_URL" envDefault:""`

	// Server
	Port string `env:"PORT" envDefault:"8080"`

	// Durable buffer / backlog (§4.3, §4.6)
	BufferCapacity   int           `env:"BUFFER_CAPACITY" envDefault:"500"`
	BufferFlushEvery time.Duration `env:"BUFFER_FLUSH_INTERVAL" envDefault:"30s"`
	BacklogSize      int           `env:"BROADCAST_BACKLOG_SIZE" envDefault:"100"`
	ReplayOnAuth     int           `env:"BROADCAST_REPLAY_ON_AUTH" envDefault:"10"`

	// Timeouts (§5)
	AuthTimeout       time.Duration `env:"SUBSCRIBER_AUTH_TIMEOUT" envDefault:"5s"`
	HistoryTimeout    time.Duration `env:"HISTORY_REQUEST_TIMEOUT" envDefault:"30s"`
	DBConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"2s"`
	DBIdleTimeout     time.Duration `env:"DB_IDLE_TIMEOUT" envDefault:"30s"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	ReconnectInitial  time.Duration `env:"UPSTREAM_RECONNECT_INITIAL" envDefault:"1s"`
	ReconnectMax      time.Duration `env:"UPSTREAM_RECONNECT_MAX" envDefault:"60s"`
	StatsTickInterval time.Duration `env:"STATS_TICK_INTERVAL" envDefault:"60s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads the environment (after optionally loading a .env file) into a
// validated Config. A nil logger is fine; Load only logs informationally.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, apperr.Wrap(apperr.ErrConfig, "parse environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.ErrConfig, "validate configuration", err)
	}

	return cfg, nil
}

// Validate enforces the required fields and range/enum checks.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.AdminMasterKey == "" {
		return fmt.Errorf("ADMIN_MASTER_KEY is required")
	}
	if c.UpstreamWSURL == "" {
		return fmt.Errorf("TELEGRAB_WS_URL is required")
	}
	if c.UpstreamAPIKey == "" {
		return fmt.Errorf("TELEGRAB_API_KEY is required")
	}
	if c.BufferCapacity < 1 {
		return fmt.Errorf("BUFFER_CAPACITY must be > 0, got %d", c.BufferCapacity)
	}
	if c.BacklogSize < 1 {
		return fmt.Errorf("BROADCAST_BACKLOG_SIZE must be > 0, got %d", c.BacklogSize)
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be > 0, got %d", c.DBMaxConns)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug,info,warn,error (got %q)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of json,pretty (got %q)", c.LogFormat)
	}

	return nil
}

// Print writes a human-readable configuration summary to stdout, the way
// the teacher's ws/config.go Print() does for startup logs.
func (c *Config) Print() {
	fmt.Println("=== signalrelay configuration ===")
	fmt.Printf("Environment:        %s\n", c.Environment)
	fmt.Printf("Port:               %s\n", c.Port)
	fmt.Printf("Upstream WS URL:    %s\n", c.UpstreamWSURL)
	fmt.Printf("Buffer capacity:    %d\n", c.BufferCapacity)
	fmt.Printf("Backlog size:       %d\n", c.BacklogSize)
	fmt.Printf("Auth timeout:       %s\n", c.AuthTimeout)
	fmt.Printf("DB max conns:       %d\n", c.DBMaxConns)
	fmt.Printf("Log level/format:   %s/%s\n", c.LogLevel, c.LogFormat)
	fmt.Println("==================================")
}
