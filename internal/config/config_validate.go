// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/worklake/internal/validation"
)

// Validate checks the configuration for correctness. Struct tags cover the
// field-level rules; the checks below cover relationships between fields and
// produce errors that name the environment variable to fix.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.OpenProject.validate(); err != nil {
		return err
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return err
	}

	return nil
}

func (c *OpenProjectConfig) validate() error {
	base := strings.TrimSpace(c.BaseURL)
	if strings.HasSuffix(base, "/") {
		// Normalise rather than reject: endpoint paths are joined with a
		// leading slash everywhere downstream.
		c.BaseURL = strings.TrimRight(base, "/")
	}

	if strings.Contains(c.BaseURL, "/api/v3") {
		return fmt.Errorf("OPENPROJECT_BASE_URL must not include the /api/v3 path; got %q", c.BaseURL)
	}

	if c.Timeout < time.Second {
		return fmt.Errorf("OPENPROJECT_TIMEOUT must be at least 1s; got %s", c.Timeout)
	}

	// A breaker threshold at or below the retry budget would open the circuit
	// in the middle of a single request's retry cycle.
	if c.BreakerThreshold != 0 && int(c.BreakerThreshold) <= c.RetryAttempts {
		return fmt.Errorf("BREAKER_THRESHOLD (%d) must exceed RETRY_ATTEMPTS (%d)",
			c.BreakerThreshold, c.RetryAttempts)
	}

	return nil
}

func (c *DatabaseConfig) validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("DUCKDB_PATH must not be empty")
	}

	if c.MaxMemory != "" && !validMemoryString(c.MaxMemory) {
		return fmt.Errorf("DUCKDB_MAX_MEMORY must look like '2GB' or '512MB'; got %q", c.MaxMemory)
	}

	return nil
}

func (c *ServerConfig) validate() error {
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP_READ_TIMEOUT must be positive; got %s", c.ReadTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT must be positive; got %s", c.WriteTimeout)
	}

	for _, origin := range c.CORSOrigins {
		o := strings.TrimSpace(origin)
		if o == "" {
			return fmt.Errorf("CORS_ORIGINS contains an empty origin")
		}
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("CORS_ORIGINS entry %q must be '*' or start with http:// or https://", origin)
		}
	}

	return nil
}

// validMemoryString accepts DuckDB memory limit strings such as "2GB",
// "512MB" or "1024KB".
func validMemoryString(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, suffix := range []string{"KB", "MB", "GB", "TB"} {
		if num, ok := strings.CutSuffix(s, suffix); ok {
			num = strings.TrimSpace(num)
			if num == "" {
				return false
			}
			for _, r := range num {
				if (r < '0' || r > '9') && r != '.' {
					return false
				}
			}
			return true
		}
	}
	return false
}

// Addr returns the host:port string the HTTP server binds to.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
