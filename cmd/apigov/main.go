// Apigov validates API code changes against a governance policy corpus.
//
// Usage:
//
//	# Index a policy document
//	apigov ingest --policy-file policies.md
//
//	# Validate the Python files changed between two commits
//	apigov run --repo-path . --old-commit main --new-commit HEAD
//
//	# Run the built-in example
//	apigov demo
//
//	# Serve the HTTP API or the MCP stdio tool surface
//	apigov serve
//	apigov mcp
//
// Configuration is read from an optional YAML file (--config) and APIGOV_*
// environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/config"
	"github.com/fyrsmithlabs/apigov/internal/logging"
	"github.com/fyrsmithlabs/apigov/internal/services"
	"github.com/fyrsmithlabs/apigov/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd(services.Options{}).Execute(); err != nil {
		if errors.Is(err, config.ErrConfiguration) {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// app carries the global flags and the service overrides shared by all commands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	// opts lets tests replace the generator, embedder and artifact store.
	opts services.Options
}

func newRootCmd(opts services.Options) *cobra.Command {
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "apigov",
		Short: "Validate API changes against governance policies",
		Long: `apigov detects API changes between two versions of source code, retrieves the
governance policies relevant to the change and validates the change against
each of them, then writes a markdown compliance report.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("APIGOV_CONFIG"), "path to YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format override (json, console)")

	root.AddCommand(
		newRunCmd(a),
		newDemoCmd(a),
		newIngestCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
	)

	return root
}

// env is the per-command runtime: configuration, logger and telemetry.
type env struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

func (a *app) setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}

	level, format := cfg.Logging.Level, cfg.Logging.Format
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.logFormat != "" {
		format = a.logFormat
	}
	logCfg, err := logging.ConfigFromStrings(level, format)
	if err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, tel: tel}, nil
}

func (e *env) close() {
	if err := e.tel.Shutdown(context.Background()); err != nil {
		e.logger.Warn(context.Background(), "telemetry shutdown failed", zap.Error(err))
	}
	_ = e.logger.Sync()
}
