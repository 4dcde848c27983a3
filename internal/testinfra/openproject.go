// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tomtom215/worklake/internal/config"
)

const (
	// DefaultOpenProjectImage is the official all-in-one OpenProject image.
	DefaultOpenProjectImage = "openproject/openproject:16"

	// DefaultOpenProjectPort is the container-internal HTTP port.
	DefaultOpenProjectPort = "80"

	// DefaultAdminPassword is the seeded admin password. Only lives inside
	// throwaway test containers.
	DefaultAdminPassword = "worklake-ci-password-1"

	// tokenMarker prefixes the minted API token in the rails runner output,
	// so it can be dug out of the raw exec stream.
	tokenMarker = "WORKLAKE_API_TOKEN="
)

// OpenProjectContainer is a running OpenProject instance for integration
// testing, with an API token minted for the seeded admin user.
type OpenProjectContainer struct {
	testcontainers.Container
	BaseURL string
	APIKey  string
}

// OpenProjectOption configures the container.
type OpenProjectOption func(*openprojectConfig)

type openprojectConfig struct {
	image         string
	adminPassword string
	startTimeout  time.Duration
}

// WithOpenProjectImage sets a custom OpenProject Docker image.
func WithOpenProjectImage(image string) OpenProjectOption {
	return func(c *openprojectConfig) {
		c.image = image
	}
}

// WithAdminPassword sets the password seeded for the admin user.
func WithAdminPassword(password string) OpenProjectOption {
	return func(c *openprojectConfig) {
		c.adminPassword = password
	}
}

// WithStartTimeout sets how long to wait for OpenProject to come up. First
// boot migrates and seeds a fresh database, which takes several minutes.
func WithStartTimeout(timeout time.Duration) OpenProjectOption {
	return func(c *openprojectConfig) {
		c.startTimeout = timeout
	}
}

// NewOpenProjectContainer creates and starts an OpenProject container, waits
// for the health check, and mints an admin API token.
//
// Example:
//
//	ctx := context.Background()
//	op, err := NewOpenProjectContainer(ctx, WithStartTimeout(10*time.Minute))
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer op.Terminate(ctx)
//
//	client := openproject.New(op.Config())
func NewOpenProjectContainer(ctx context.Context, opts ...OpenProjectOption) (*OpenProjectContainer, error) {
	cfg := &openprojectConfig{
		image:         DefaultOpenProjectImage,
		adminPassword: DefaultAdminPassword,
		startTimeout:  5 * time.Minute,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultOpenProjectPort + "/tcp"},
		Env: map[string]string{
			"OPENPROJECT_HTTPS":                           "false",
			"OPENPROJECT_HOST__NAME":                      "localhost",
			"OPENPROJECT_SECRET_KEY_BASE":                 "worklake-integration-secret",
			"OPENPROJECT_DEFAULT__LANGUAGE":               "en",
			"OPENPROJECT_SEED_ADMIN_USER_PASSWORD":        cfg.adminPassword,
			"OPENPROJECT_SEED_ADMIN_USER_PASSWORD__RESET": "false",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(DefaultOpenProjectPort+"/tcp"),
			wait.ForHTTP("/health_checks/default").WithPort(DefaultOpenProjectPort+"/tcp"),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create openproject container: %w", err)
	}

	apiKey, err := mintAPIToken(ctx, container)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("mint api token: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, DefaultOpenProjectPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &OpenProjectContainer{
		Container: container,
		BaseURL:   fmt.Sprintf("http://%s:%s", host, port.Port()),
		APIKey:    apiKey,
	}, nil
}

// mintAPIToken creates an API token for the seeded admin user via the rails
// runner and returns its plain value. Tokens are stored hashed, so the value
// only ever exists in the command output.
func mintAPIToken(ctx context.Context, container testcontainers.Container) (string, error) {
	script := fmt.Sprintf(
		`user = User.find_by!(login: "admin"); token = Token::API.create!(user: user); puts "%s#{token.plain_value}"`,
		tokenMarker,
	)

	code, reader, err := container.Exec(ctx, []string{"bundle", "exec", "rails", "runner", script})
	if err != nil {
		return "", fmt.Errorf("exec rails runner: %w", err)
	}
	output, _ := io.ReadAll(reader)
	if code != 0 {
		return "", fmt.Errorf("rails runner exited %d: %s", code, string(output))
	}

	return parseTokenOutput(string(output))
}

// parseTokenOutput digs the marked token out of an exec stream. The stream
// interleaves docker frame headers with the payload, so this scans for the
// marker rather than splitting lines.
func parseTokenOutput(output string) (string, error) {
	idx := strings.Index(output, tokenMarker)
	if idx == -1 {
		return "", fmt.Errorf("no token marker in rails output: %q", output)
	}

	rest := output[idx+len(tokenMarker):]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || !unicode.IsPrint(r)
	})
	if end == -1 {
		end = len(rest)
	}

	token := rest[:end]
	if token == "" {
		return "", fmt.Errorf("empty token in rails output: %q", output)
	}
	return token, nil
}

// Config returns a connection configuration pointing at the container,
// ready for openproject.New.
func (c *OpenProjectContainer) Config() *config.OpenProjectConfig {
	return &config.OpenProjectConfig{
		BaseURL:       c.BaseURL,
		APIKey:        c.APIKey,
		ConnectionID:  1,
		PageSize:      20,
		RateLimitRPM:  300,
		RetryAttempts: 3,
		Timeout:       30 * time.Second,
		MaxPages:      100,
	}
}

// APIURL returns the full URL for a v3 API path, e.g. APIURL("/projects").
func (c *OpenProjectContainer) APIURL(path string) string {
	return c.BaseURL + "/api/v3" + path
}

// Terminate stops and removes the container.
func (c *OpenProjectContainer) Terminate(ctx context.Context) error {
	return c.Container.Terminate(ctx)
}

// ContainerLogs returns the container logs for debugging startup failures.
func (c *OpenProjectContainer) ContainerLogs(ctx context.Context) (string, error) {
	reader, err := c.Container.Logs(ctx)
	if err != nil {
		return "", fmt.Errorf("get logs: %w", err)
	}
	defer reader.Close()

	logs, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read logs: %w", err)
	}
	return string(logs), nil
}
