// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Flat snake_case keys shared by YAML files and PERIODRANK_* env vars.
//   - New(ctx) returns defaults; Load(ctx) layers file and env on top.
package config

import (
	"context"
	"fmt"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the logger backend: slog (text) or zap (json).
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the rating store: sqlite (default, file periodrank.db
	// unless StoreDSN is set), postgres, pgx, redis, or memory for throwaway runs.
	StoreDriver string `koanf:"store_driver"`
	// StoreDSN is the data source name for SQL drivers.
	StoreDSN string `koanf:"store_dsn"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`

	// Starting values for players seen for the first time.
	InitialRating     float64 `koanf:"initial_rating"`
	InitialDeviation  float64 `koanf:"initial_deviation"`
	InitialVolatility float64 `koanf:"initial_volatility"`

	// Tau constrains volatility change; 0.3 to 1.2 is the usual range.
	Tau float64 `koanf:"tau"`
	// Tolerance is the convergence tolerance of the volatility solve.
	Tolerance float64 `koanf:"tolerance"`
	// MaxIterations caps the volatility solve.
	MaxIterations int `koanf:"max_iterations"`

	// QueueSize bounds the queue of submitted periods.
	QueueSize int `koanf:"queue_size"`
	// DedupeSize caps the number of periods tracked in flight.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "slog",
		Addr:                ":9080",
		StoreDriver:         "sqlite",
		RedisAddr:           "localhost:6379",
		RedisPrefix:         "periodrank",
		InitialRating:       1500,
		InitialDeviation:    350,
		InitialVolatility:   0.06,
		Tau:                 0.75,
		Tolerance:           1e-6,
		MaxIterations:       100,
		QueueSize:           1_000,
		DedupeSize:          10_000,
		MaxLeaderboardLimit: 100,
	}
}

var validDrivers = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"postgres": true,
	"pgx":      true,
	"redis":    true,
}

// Validate reports the first unusable setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !validDrivers[strings.ToLower(c.StoreDriver)]:
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrUnknownDriver, c.StoreDriver)
	case (c.StoreDriver == "postgres" || c.StoreDriver == "pgx") && c.StoreDSN == "":
		return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == "redis" && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr is required for redis", ErrInvalidConfig)
	case c.InitialDeviation < 0:
		return fmt.Errorf("%w: initial_deviation must not be negative", ErrInvalidConfig)
	case c.InitialVolatility <= 0:
		return fmt.Errorf("%w: initial_volatility must be positive", ErrInvalidConfig)
	case c.Tau <= 0:
		return fmt.Errorf("%w: tau must be positive", ErrInvalidConfig)
	case c.Tolerance <= 0:
		return fmt.Errorf("%w: tolerance must be positive", ErrInvalidConfig)
	case c.MaxIterations < 1:
		return fmt.Errorf("%w: max_iterations must be at least 1", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be at least 1", ErrInvalidConfig)
	case c.DedupeSize < 1:
		return fmt.Errorf("%w: dedupe_size must be at least 1", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1:
		return fmt.Errorf("%w: max_leaderboard_limit must be at least 1", ErrInvalidConfig)
	}
	return nil
}
