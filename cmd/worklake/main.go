// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

// Package main is the worklake command line entry point.
//
// Worklake pulls project management data out of an OpenProject server and
// lands it in a DuckDB warehouse in three layers: raw API pages, typed tool
// rows, and cross-tool domain tables (issues, boards, worklogs, accounts,
// sprints). Each stage runs standalone or as part of a full pipeline run.
//
// # Subcommands
//
//	worklake collect   fetch API pages into the raw layer
//	worklake extract   normalize raw pages into tool tables
//	worklake convert   map tool rows into the domain tables
//	worklake run       collect + extract + convert with a run record
//	worklake serve     ops HTTP server plus a supervised run worker
//	worklake migrate   create/upgrade pipeline tables (--domain adds the
//	                   domain DDL for standalone deployments)
//
// # Configuration
//
// Configuration loads via Koanf v2 with layered sources (highest wins):
// environment variables, an optional YAML file (--config or WORKLAKE_CONFIG),
// then built-in defaults. The minimum viable environment:
//
//	export OPENPROJECT_BASE_URL=https://openproject.example.com
//	export OPENPROJECT_API_KEY=your-apikey
//	export DUCKDB_PATH=/data/worklake.duckdb
//	worklake run
//
// # Serve mode
//
// `worklake serve` exposes /healthz, /metrics, /api/v1/status, and a
// POST /api/v1/pipelines trigger on HTTP_PORT (default 8484). The HTTP
// server and the run worker live under a suture supervisor tree and shut
// down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tomtom215/worklake/internal/api"
	"github.com/tomtom215/worklake/internal/collector"
	"github.com/tomtom215/worklake/internal/config"
	"github.com/tomtom215/worklake/internal/converter"
	"github.com/tomtom215/worklake/internal/database"
	"github.com/tomtom215/worklake/internal/extractor"
	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/metrics"
	"github.com/tomtom215/worklake/internal/openproject"
	"github.com/tomtom215/worklake/internal/pipeline"
	"github.com/tomtom215/worklake/internal/supervisor"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

const usageText = `Worklake - OpenProject to DuckDB warehouse pipeline

Usage:
  worklake <command> [flags]

Commands:
  collect   Fetch OpenProject API pages into the raw layer
  extract   Normalize raw pages into tool tables
  convert   Map tool rows into the domain tables
  run       Full pipeline (collect, extract, convert) with a run record
  serve     Ops HTTP server plus a supervised run worker
  migrate   Create or upgrade the pipeline-owned tables

Common flags:
  --config PATH   Config file (also WORKLAKE_CONFIG)
  --verbose       Force debug logging

Run 'worklake <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "collect":
		err = cmdCollect(os.Args[2:])
	case "extract":
		err = cmdExtract(os.Args[2:])
	case "convert":
		err = cmdConvert(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	case "migrate":
		err = cmdMigrate(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usageText)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usageText)
		os.Exit(2)
	}

	if err != nil {
		logging.Fatal().Err(err).Msg("Command failed")
	}
}

// commonFlags holds the flags every subcommand shares.
type commonFlags struct {
	configPath string
	verbose    bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "config file path (also WORKLAKE_CONFIG)")
	fs.BoolVar(&cf.verbose, "verbose", false, "force debug logging")
	return cf
}

// boot loads configuration and initializes logging. Every subcommand starts
// here so one LOG_LEVEL/LOG_FORMAT pair governs the whole process.
func boot(cf *commonFlags) (*config.Config, error) {
	if cf.configPath != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, cf.configPath); err != nil {
			return nil, fmt.Errorf("failed to set config path: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	if cf.verbose {
		logging.SetLevelString("debug")
	}

	logging.Info().
		Str("version", version).
		Int64("connection_id", cfg.OpenProject.ConnectionID).
		Str("db_path", cfg.Database.Path).
		Msg("Configuration loaded")

	return cfg, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// parseProjectIDs parses the --projects override, e.g. "3,14,15".
func parseProjectIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("--projects must be comma-separated positive ids; got %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// projectScope applies the --projects flag over the configured default scope.
func projectScope(cfg *config.Config, flagValue string) ([]int64, error) {
	ids, err := parseProjectIDs(flagValue)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		return cfg.Pipeline.ProjectIDs, nil
	}
	return ids, nil
}

func openDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func closeDatabase(db *database.DB) {
	if err := db.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing database")
	}
}

// checkpoint flushes the WAL so external readers of the database file see
// the finished data. Failures are logged, not fatal.
func checkpoint(ctx context.Context, db *database.DB) {
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Checkpoint failed")
	}
}

// testConnection probes the projects endpoint and reports what the key sees.
func testConnection(ctx context.Context, cfg *config.Config) error {
	client := openproject.New(&cfg.OpenProject)
	total, err := client.TestConnection(ctx)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	logging.Info().
		Str("base_url", cfg.OpenProject.BaseURL).
		Int("visible_projects", total).
		Msg("Connection test succeeded")
	return nil
}

func cmdCollect(args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	cf := addCommonFlags(fs)
	projects := fs.String("projects", "", "comma-separated project ids to collect")
	full := fs.Bool("full", false, "mark this as a deliberate full re-pull")
	test := fs.Bool("test", false, "probe connectivity and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := boot(cf)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if *test {
		return testConnection(ctx, cfg)
	}

	ids, err := projectScope(cfg, *projects)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	col := collector.New(openproject.New(&cfg.OpenProject), db, &cfg.OpenProject)
	stats, err := col.Run(ctx, collector.Options{ProjectIDs: ids, Incremental: !*full})
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	logging.Info().Int("collected", stats.Total()).Msg("Collection finished")
	return nil
}

func cmdExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	cf := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := boot(cf)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	ext := extractor.New(db, cfg.OpenProject.ConnectionID, cfg.Pipeline.ExtractBatchSize)
	stats, err := ext.Run(ctx)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	logging.Info().Int("extracted", stats.Total()).Msg("Extraction finished")
	return nil
}

func cmdConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	cf := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := boot(cf)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	conv := converter.New(db, &cfg.OpenProject)
	stats, err := conv.Run(ctx)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	checkpoint(ctx, db)
	logging.Info().Int("converted", stats.Total()).Msg("Conversion finished")
	return nil
}

// newRunner wires the three stages over one database handle.
func newRunner(cfg *config.Config, db *database.DB) *pipeline.Runner {
	col := collector.New(openproject.New(&cfg.OpenProject), db, &cfg.OpenProject)
	ext := extractor.New(db, cfg.OpenProject.ConnectionID, cfg.Pipeline.ExtractBatchSize)
	conv := converter.New(db, &cfg.OpenProject)
	return pipeline.New(col, ext, conv, db, cfg.OpenProject.ConnectionID)
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cf := addCommonFlags(fs)
	projects := fs.String("projects", "", "comma-separated project ids to collect")
	full := fs.Bool("full", false, "mark this as a deliberate full re-pull")
	test := fs.Bool("test", false, "probe connectivity and exit")
	dryRun := fs.Bool("dry-run", false, "log the plan and touch nothing")
	skipCollection := fs.Bool("skip-collection", false, "reuse the raw layer as-is")
	skipExtraction := fs.Bool("skip-extraction", false, "additionally reuse the tool layer")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := boot(cf)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if *test {
		return testConnection(ctx, cfg)
	}

	ids, err := projectScope(cfg, *projects)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	report, err := newRunner(cfg, db).Run(ctx, pipeline.Options{
		SkipCollection: *skipCollection,
		SkipExtraction: *skipExtraction,
		DryRun:         *dryRun,
		Full:           *full,
		ProjectIDs:     ids,
	})
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	if !*dryRun {
		checkpoint(ctx, db)
	}
	logging.Info().
		Str("mode", report.Mode).
		Int("collected", report.Collect.Records).
		Int("extracted", report.Extract.Records).
		Int("converted", report.Convert.Records).
		Msg("Pipeline run finished")
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cf := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := boot(cf)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run rows left queued or running by a crash would hold the trigger
	// endpoint at 409 forever; fail them before accepting new work.
	connID := cfg.OpenProject.ConnectionID
	if swept, err := db.FailInterruptedRuns(ctx, connID); err != nil {
		return fmt.Errorf("failed to sweep interrupted runs: %w", err)
	} else if swept > 0 {
		logging.Warn().Int64("count", swept).Msg("Failed runs interrupted by an earlier shutdown")
	}

	worker := pipeline.NewWorker(newRunner(cfg, db), pipeline.DefaultQueueSize)
	handler := api.NewHandler(db, worker, connID)
	server := api.NewServer(&cfg.Server, handler)

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddPipelineService(worker)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().
		Str("addr", server.Addr).
		Bool("auth_enabled", cfg.Server.AuthToken != "").
		Msg("Starting supervisor tree")

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Msg("Server stopped gracefully")
	return nil
}

func cmdMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	cf := addCommonFlags(fs)
	domain := fs.Bool("domain", false, "also create the shared domain tables")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := boot(cf)
	if err != nil {
		return err
	}

	// Opening the database creates the raw and tool tables and applies any
	// pending versioned migrations.
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	schemaVersion, err := db.GetCurrentSchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logging.Info().Int("schema_version", schemaVersion).Msg("Pipeline tables up to date")

	if *domain {
		if err := db.EnsureDomainTables(); err != nil {
			return fmt.Errorf("failed to create domain tables: %w", err)
		}
		logging.Info().Msg("Domain tables up to date")
	}

	return nil
}
