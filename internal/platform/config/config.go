// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, Executor) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Flowra API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./migrations"`

	// Key-Value Store (Redis). Holds volatile single-use tokens.
	RedisURL string `env:"REDIS_URL,required"`

	// JWTSecret is the symmetric HMAC-SHA256 signing key for all tokens.
	JWTSecret string `env:"JWT_SECRET,required"`

	// AccessTokenTTLMinutes bounds the lifetime of access tokens.
	AccessTokenTTLMinutes int `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"30"`

	// RefreshTokenTTLDays bounds the lifetime of refresh tokens.
	// Fractional values are allowed (e.g. 0.5 for twelve hours).
	RefreshTokenTTLDays float64 `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"7"`

	// CleanupIntervalSeconds is the pause between expired-credential sweeps.
	CleanupIntervalSeconds int `env:"CLEANUP_INTERVAL_SECONDS" envDefault:"3600"`

	// WorkflowDataDir is the root under which per-step script directories live.
	WorkflowDataDir string `env:"WORKFLOW_DATA_DIR" envDefault:"./data/workflows"`

	// ExecutionTimeoutSeconds is the hard per-step execution deadline.
	ExecutionTimeoutSeconds int `env:"EXECUTION_TIMEOUT_SECONDS" envDefault:"300"`

	// DockerBinary is the container runtime CLI used for sandboxed runs.
	DockerBinary string `env:"DOCKER_BINARY" envDefault:"docker"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// # Derived Durations

// AccessTokenTTL returns the access token lifetime as a [time.Duration].
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime as a [time.Duration].
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLDays * 24 * float64(time.Hour))
}

// CleanupInterval returns the sweep interval as a [time.Duration].
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// ExecutionTimeout returns the per-step execution deadline as a [time.Duration].
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutSeconds) * time.Second
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
