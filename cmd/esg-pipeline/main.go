// Command esg-pipeline runs the full ESG panel study: it ingests the
// firm-year spreadsheet, audits and transforms the panel, fits the model
// battery, and writes the report, figures, and CSV artifacts.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"esgpanel/internal/config"
	"esgpanel/internal/exporter"
	"esgpanel/internal/infrastructure"
	"esgpanel/internal/operations"
)

func main() {
	input := flag.String("input", "", "input spreadsheet (overrides configuration)")
	baseDir := flag.String("base-dir", "", "base directory for data, reports, plots and logs (defaults to the executable directory)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *input != "" {
		cfg.Study.InputFile = *input
	}
	if *baseDir != "" {
		cfg.Paths.BaseDir = *baseDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		slog.Error("Failed to resolve paths", "error", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		slog.Error("Failed to create directories", "error", err)
		os.Exit(1)
	}

	cfg.Logging.FilePath = paths.GetLogPath("pipeline.log")
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()
	paths.LogPathResolution()

	if cfg.Tracing.Enabled {
		cfg.Tracing.FilePath = paths.GetLogPath("traces.jsonl")
	}
	tracing, err := infrastructure.InitializeTracing(cfg.Tracing, logger)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := operations.Deps{
		Study: cfg.Study,
		Paths: paths,
		CSV:   exporter.NewCSVWriter(paths),
	}
	manager := operations.NewManager(operations.DefaultStages(deps)...)

	state, runErr := manager.Run(ctx)

	shutdownCtx := context.Background()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", "error", err)
	}

	if runErr != nil {
		logger.Error("Pipeline failed",
			"run_id", state.ID,
			"duration", state.Duration().String(),
			"error", runErr)
		os.Exit(1)
	}

	logger.Info("Pipeline finished",
		"run_id", state.ID,
		"duration", state.Duration().String(),
		"results", paths.ResultsJSON,
		"report", paths.GetReportPath("report.txt"))
}
