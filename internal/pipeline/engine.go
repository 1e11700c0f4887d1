package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Engine executes a compiled chain against one exchange. Execution is
// strictly sequential: later steps depend on the output of earlier ones.
type Engine struct {
	pipeline      *CompiledPipeline
	log           *slog.Logger
	stageDuration metric.Float64Histogram
}

func NewEngine(pipeline *CompiledPipeline, log *slog.Logger) *Engine {
	e := &Engine{
		pipeline: pipeline,
		log:      log.With(slog.String("component", "pipeline-engine")),
	}
	meter := otel.Meter("github.com/voxpipe-ai/voxpipe/pipeline")
	histogram, err := meter.Float64Histogram(
		"voxpipe.pipeline.stage.duration",
		metric.WithDescription("Wall time per pipeline stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		e.log.Warn("failed to create stage duration histogram", slog.String("error", err.Error()))
	} else {
		e.stageDuration = histogram
	}
	return e
}

// Pipeline returns the chain this engine executes.
func (e *Engine) Pipeline() *CompiledPipeline {
	return e.pipeline
}

// Run walks the chain in order. The first failing step aborts the rest;
// the returned error is tagged with that step's name and capability. If the
// caller's context is done the engine stops before starting the next step.
func (e *Engine) Run(ctx context.Context, ex *Exchange) error {
	for _, step := range e.pipeline.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.log.Debug("executing stage",
			slog.String("step", step.Name),
			slog.String("capability", string(step.Capability)),
			slog.Bool("remote", step.Remote),
			slog.String("session_id", ex.SessionID))

		start := time.Now()
		err := step.stage.Run(ctx, ex)
		if e.stageDuration != nil {
			e.stageDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
				attribute.String("step", step.Name),
				attribute.String("capability", string(step.Capability)),
				attribute.Bool("remote", step.Remote),
			))
		}
		if err != nil {
			failure := StepFailure(step.Name, step.Capability, err)
			e.log.Warn("stage failed",
				slog.String("step", step.Name),
				slog.String("kind", string(failure.Kind)),
				slog.String("error", failure.Error()))
			return failure
		}
	}
	return nil
}
