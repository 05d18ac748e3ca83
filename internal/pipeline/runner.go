package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"omnichannel/internal/infrastructure"
)

// TracerName names the tracer of pipeline spans
const TracerName = "omnichannel.pipeline"

// Runner executes steps sequentially
type Runner struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
	logger  *slog.Logger
}

// NewRunner creates a runner. metrics may be nil.
func NewRunner(metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
		logger:  infrastructure.WithComponent(logger, "pipeline"),
	}
}

// Run executes steps in order and stops at the first failure, which is
// returned as a *StageError. All steps are validated before the first one
// executes.
func (r *Runner) Run(ctx context.Context, state *RunState, steps []Step) error {
	ctx = infrastructure.WithTraceID(ctx, state.ID)
	ctx, span := r.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", state.ID),
			attribute.Int("run.steps", len(steps)),
		),
	)
	defer span.End()

	for _, step := range steps {
		state.AddStep(step.ID(), step.Name())
	}
	state.Start()
	start := time.Now()

	r.logger.InfoContext(ctx, "run started",
		slog.String("run_id", state.ID),
		slog.Int("steps", len(steps)))

	for _, step := range steps {
		if err := step.Validate(state); err != nil {
			return r.fail(ctx, span, state, step, fmt.Errorf("validate: %w", err))
		}
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, span, state, step, err)
		}
		if err := r.execute(ctx, state, step); err != nil {
			return r.fail(ctx, span, state, step, err)
		}
	}

	state.Complete()
	span.SetStatus(codes.Ok, "")
	r.logger.InfoContext(ctx, "run completed",
		slog.String("run_id", state.ID),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (r *Runner) execute(ctx context.Context, state *RunState, step Step) error {
	ctx = infrastructure.WithStage(ctx, step.ID())
	ctx, span := r.tracer.Start(ctx, "pipeline.step."+step.ID(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", state.ID),
			attribute.String("step.id", step.ID()),
			attribute.String("step.name", step.Name()),
		),
	)
	defer span.End()

	st := state.Step(step.ID())
	st.Start()
	r.logger.InfoContext(ctx, "step started", slog.String("step", step.ID()))

	started := time.Now()
	err := step.Execute(ctx, state)
	duration := time.Since(started)

	if r.metrics != nil {
		r.metrics.RecordStage(ctx, step.ID(), duration, err)
	}

	if err != nil {
		st.Fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	st.Complete()
	in, out, dropped := st.Rows()
	if r.metrics != nil {
		r.metrics.RecordRows(ctx, step.ID(), in, out, dropped)
	}
	span.SetAttributes(
		attribute.Int("step.rows_in", in),
		attribute.Int("step.rows_out", out),
	)
	span.SetStatus(codes.Ok, "")

	attrs := []any{
		slog.String("step", step.ID()),
		slog.Int("rows_in", in),
		slog.Int("rows_out", out),
		slog.Duration("duration", duration),
	}
	if len(dropped) > 0 {
		attrs = append(attrs, slog.Any("dropped", dropped))
	}
	r.logger.InfoContext(ctx, "step completed", attrs...)
	return nil
}

func (r *Runner) fail(ctx context.Context, span trace.Span, state *RunState, step Step, err error) error {
	wrapped := WrapError(err, step.ID())
	if st := state.Step(step.ID()); st != nil {
		st.Fail(err)
	}
	state.Fail(wrapped)
	span.RecordError(wrapped)
	span.SetStatus(codes.Error, wrapped.Error())

	infrastructure.WithError(r.logger, err).ErrorContext(ctx, "run failed",
		slog.String("run_id", state.ID),
		slog.String("step", step.ID()))
	return wrapped
}
