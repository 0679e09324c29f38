package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "esgpanel/internal/errors"
	"esgpanel/internal/infrastructure"
)

const tracerName = "esgpanel.pipeline"

// Manager executes the study pipeline stage by stage. Stages run strictly
// in registration order and the first failure aborts the run.
type Manager struct {
	stages []Stage
	tracer trace.Tracer
}

// NewManager creates a manager over the given stages
func NewManager(stages ...Stage) *Manager {
	return &Manager{
		stages: stages,
		tracer: otel.Tracer(tracerName),
	}
}

// Stages returns the registered stages in execution order
func (m *Manager) Stages() []Stage {
	return m.stages
}

// Run executes the full pipeline. The returned state carries every stage
// outcome even when the run fails partway.
func (m *Manager) Run(ctx context.Context) (*RunState, error) {
	runID := uuid.New().String()
	ctx = infrastructure.WithRunID(ctx, runID)

	state := NewRunState(runID)
	for _, stage := range m.stages {
		state.SetStage(stage.ID(), NewStageState(stage.ID(), stage.Name()))
	}

	ctx, span := m.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.stage_count", len(m.stages)),
		),
	)
	defer span.End()

	slog.InfoContext(ctx, "pipeline_start",
		slog.Int("stage_count", len(m.stages)))

	state.Start()
	err := m.runStages(ctx, state)

	if err != nil {
		if state.GetStatus() != RunStatusCancelled {
			state.Fail(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		slog.ErrorContext(ctx, "pipeline_failed",
			slog.Duration("duration", state.Duration()),
			slog.String("error", err.Error()))
		return state, err
	}

	state.Complete()
	span.SetStatus(codes.Ok, "pipeline completed")
	slog.InfoContext(ctx, "pipeline_completed",
		slog.Duration("duration", state.Duration()))
	return state, nil
}

func (m *Manager) runStages(ctx context.Context, state *RunState) error {
	for i, stage := range m.stages {
		select {
		case <-ctx.Done():
			m.skipRemaining(state, i, "run cancelled")
			state.Cancel()
			return ctx.Err()
		default:
		}

		slog.InfoContext(ctx, "executing_stage",
			slog.String("stage", stage.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(m.stages)))

		if err := m.executeStage(ctx, state, stage); err != nil {
			m.skipRemaining(state, i+1, fmt.Sprintf("stage %s failed", stage.ID()))
			return err
		}
	}
	return nil
}

func (m *Manager) executeStage(ctx context.Context, state *RunState, stage Stage) error {
	stageState := state.GetStage(stage.ID())

	ctx, span := m.tracer.Start(ctx, "pipeline.stage."+stage.ID(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("stage.id", stage.ID()),
			attribute.String("stage.name", stage.Name()),
		),
	)
	defer span.End()

	if err := stage.Validate(state); err != nil {
		stageState.Fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage validation failed")
		slog.ErrorContext(ctx, "stage_validation_failed",
			slog.String("stage", stage.ID()),
			slog.String("error", err.Error()))
		return apperrors.WrapStage(stage.ID(), err)
	}

	stageState.Start()
	start := time.Now()
	err := stage.Execute(ctx, state)
	duration := time.Since(start)

	span.SetAttributes(attribute.Float64("stage.duration_seconds", duration.Seconds()))

	if err != nil {
		stageState.Fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage execution failed")
		slog.ErrorContext(ctx, "stage_failed",
			slog.String("stage", stage.ID()),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return apperrors.WrapStage(stage.ID(), err)
	}

	stageState.Complete()
	span.SetStatus(codes.Ok, "stage completed")
	slog.InfoContext(ctx, "stage_completed",
		slog.String("stage", stage.ID()),
		slog.Duration("duration", duration))
	return nil
}

func (m *Manager) skipRemaining(state *RunState, from int, reason string) {
	for _, stage := range m.stages[from:] {
		stageState := state.GetStage(stage.ID())
		if stageState.GetStatus() == StageStatusPending {
			stageState.Skip(reason)
		}
	}
}
