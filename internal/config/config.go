// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package config

import (
	"time"
)

// Config holds all application configuration loaded from environment variables
// and an optional YAML config file.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting via environment variables
//
// Configuration Categories:
//
//  1. Source:
//     - OpenProject: connection, credentials, pacing and retry budget
//
//  2. Warehouse:
//     - Database: DuckDB configuration (path, memory, threads)
//
//  3. Pipeline:
//     - Extraction batch sizing and optional standing project scope
//
//  4. Ops surface:
//     - Server: trigger/status HTTP server (host, port, auth token, CORS)
//
//  5. Observability:
//     - Logging: log level and output format
//
// Example - Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load config")
//	}
//	// cfg.OpenProject.BaseURL, cfg.Database.Path, etc. are now populated
//
// Validation:
// Load() validates all fields and returns an error if required values are
// missing (OPENPROJECT_BASE_URL, OPENPROJECT_API_KEY) or malformed.
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	OpenProject OpenProjectConfig `koanf:"openproject"`
	Database    DatabaseConfig    `koanf:"database"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// OpenProjectConfig holds the upstream connection settings for one OpenProject
// instance. The connection id scopes every raw, tool, and domain row this
// pipeline writes, so several instances can share one warehouse.
//
// Environment Variables:
//   - OPENPROJECT_BASE_URL: Instance URL, e.g. https://openproject.example.com
//   - OPENPROJECT_API_KEY: API key from My Account > Access Tokens
//   - OPENPROJECT_CONNECTION_ID: Warehouse scope id (default: 1)
//   - OPENPROJECT_PAGE_SIZE: Elements requested per page (default: 100)
//   - RATE_LIMIT_RPM: Request budget per sliding minute (default: 100)
//   - RETRY_ATTEMPTS: Attempts per request before giving up (default: 3)
//   - OPENPROJECT_TIMEOUT: Per-request timeout (default: 30s)
//   - MAX_PAGES_PER_COLLECTION: Safety cap per entity type (default: 1000)
//   - BREAKER_THRESHOLD: Consecutive exhausted requests before the circuit
//     opens (default: 5, 0 disables the breaker)
type OpenProjectConfig struct {
	BaseURL       string        `koanf:"base_url" validate:"required,http_url"`
	APIKey        string        `koanf:"api_key" validate:"required"`
	ConnectionID  int64         `koanf:"connection_id" validate:"min=1"`
	PageSize      int           `koanf:"page_size" validate:"min=1,max=500"`
	RateLimitRPM  int           `koanf:"rate_limit_rpm" validate:"min=1,max=6000"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"min=1,max=10"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxPages      int           `koanf:"max_pages_per_collection" validate:"min=1"`
	// BreakerThreshold stays above a single request's retry budget by default
	// so one exhausted request never opens the circuit on its own.
	BreakerThreshold uint32 `koanf:"breaker_threshold"`
}

// DatabaseConfig holds DuckDB warehouse settings.
//
// Environment Variables:
//   - DUCKDB_PATH: Database file path (default: /data/worklake.duckdb)
//   - DUCKDB_MAX_MEMORY: DuckDB memory limit (default: 2GB)
//   - DUCKDB_THREADS: DuckDB thread count, 0 = NumCPU (default: 0)
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"min=0,max=256"`
}

// PipelineConfig holds stage tuning knobs.
//
// Environment Variables:
//   - EXTRACT_BATCH_SIZE: Raw rows parsed per extractor transaction (default: 50)
//   - PROJECT_IDS: Standing project scope, comma-separated native ids
//     (default: empty = one global unfiltered pass)
type PipelineConfig struct {
	ExtractBatchSize int     `koanf:"extract_batch_size" validate:"min=1,max=1000"`
	ProjectIDs       []int64 `koanf:"project_ids"`
}

// ServerConfig holds the ops HTTP server settings used by `worklake serve`.
// The server exposes health, metrics, pipeline status, and a trigger endpoint
// for external schedulers; it never serves analytics itself.
//
// Environment Variables:
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_PORT: Bind port (default: 8484)
//   - WORKLAKE_AUTH_TOKEN: Static bearer token required on mutating endpoints
//     (default: empty = no auth, suitable only on a private network)
//   - CORS_ORIGINS: Allowed origins, comma-separated (default: *)
//   - TRIGGER_PER_MINUTE: Rate limit for POST /api/v1/pipelines (default: 6)
type ServerConfig struct {
	Host          string        `koanf:"host"`
	Port          int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout   time.Duration `koanf:"read_timeout"`
	WriteTimeout  time.Duration `koanf:"write_timeout"`
	AuthToken     string        `koanf:"auth_token"`
	CORSOrigins   []string      `koanf:"cors_origins"`
	TriggerPerMin int           `koanf:"trigger_per_minute" validate:"min=1"`
}

// LoggingConfig holds logging settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load loads, layers, and validates the full application configuration.
// It is the single entry point main() should use.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
