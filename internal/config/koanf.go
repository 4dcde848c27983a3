// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/worklake/config.yaml",
	"/etc/worklake/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config file path.
const ConfigPathEnvVar = "WORKLAKE_CONFIG"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		OpenProject: OpenProjectConfig{
			BaseURL:          "",
			APIKey:           "",
			ConnectionID:     1,
			PageSize:         100,
			RateLimitRPM:     100,
			RetryAttempts:    3,
			Timeout:          30 * time.Second,
			MaxPages:         1000,
			BreakerThreshold: 5,
		},
		Database: DatabaseConfig{
			Path:      "/data/worklake.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Pipeline: PipelineConfig{
			ExtractBatchSize: 50,
			ProjectIDs:       nil,
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8484,
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  30 * time.Second,
			AuthToken:     "",
			CORSOrigins:   []string{"*"},
			TriggerPerMin: 6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence: ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// OPENPROJECT_BASE_URL -> openproject.base_url
	// DUCKDB_PATH -> database.path
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// values when supplied through environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"pipeline.project_ids",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as plain strings; YAML arrives as real
// slices and is left untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		if _, ok := val.([]int64); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}

		// project_ids is numeric: reject garbage here so the error names the
		// offending value instead of surfacing as a mapstructure decode error.
		if path == "pipeline.project_ids" {
			ids := make([]int64, 0, len(trimmed))
			for _, p := range trimmed {
				id, err := strconv.ParseInt(p, 10, 64)
				if err != nil {
					return fmt.Errorf("PROJECT_IDS contains non-numeric id %q", p)
				}
				ids = append(ids, id)
			}
			if err := k.Set(path, ids); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
			continue
		}

		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Only explicitly mapped variables are accepted; everything else is dropped so
// unrelated environment variables never pollute the configuration.
//
// Examples:
//   - OPENPROJECT_BASE_URL -> openproject.base_url
//   - RATE_LIMIT_RPM -> openproject.rate_limit_rpm
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// OpenProject source mappings
		"openproject_base_url":      "openproject.base_url",
		"openproject_api_key":       "openproject.api_key",
		"openproject_connection_id": "openproject.connection_id",
		"openproject_page_size":     "openproject.page_size",
		"openproject_timeout":       "openproject.timeout",
		"rate_limit_rpm":            "openproject.rate_limit_rpm",
		"retry_attempts":            "openproject.retry_attempts",
		"max_pages_per_collection":  "openproject.max_pages_per_collection",
		"breaker_threshold":         "openproject.breaker_threshold",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Pipeline mappings
		"extract_batch_size": "pipeline.extract_batch_size",
		"project_ids":        "pipeline.project_ids",

		// Server mappings
		"http_host":            "server.host",
		"http_port":            "server.port",
		"http_read_timeout":    "server.read_timeout",
		"http_write_timeout":   "server.write_timeout",
		"worklake_auth_token":  "server.auth_token",
		"cors_origins":         "server.cors_origins",
		"trigger_per_minute":   "server.trigger_per_minute",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped.
	return ""
}
