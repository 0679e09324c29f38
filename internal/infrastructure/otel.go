package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"esgpanel/internal/config"
)

const (
	ServiceName    = "esg-panel-pipeline"
	ServiceVersion = "v1.2.0"
	TracerName     = "esgpanel"
)

// TracerProviders holds the tracing provider and tracer for a run
type TracerProviders struct {
	TracerProvider *sdktrace.TracerProvider
	Tracer         trace.Tracer
	traceFile      *os.File
}

// InitializeTracing sets up the OpenTelemetry tracer for the pipeline.
// Spans are exported as JSON lines to the configured trace file; when
// tracing is disabled a no-op tracer is returned so call sites never need
// to branch on the config.
func InitializeTracing(cfg config.TracingConfig, logger *slog.Logger) (*TracerProviders, error) {
	if !cfg.Enabled {
		return &TracerProviders{Tracer: noop.NewTracerProvider().Tracer(TracerName)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(file),
	)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	logger.Info("Tracing initialized",
		slog.String("service", ServiceName),
		slog.String("trace_file", cfg.FilePath))

	return &TracerProviders{
		TracerProvider: tp,
		Tracer:         tp.Tracer(TracerName),
		traceFile:      file,
	}, nil
}

// Shutdown flushes and closes the tracer provider.
func (p *TracerProviders) Shutdown(ctx context.Context) error {
	if p.TracerProvider == nil {
		return nil
	}
	err := p.TracerProvider.Shutdown(ctx)
	if p.traceFile != nil {
		if cerr := p.traceFile.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
