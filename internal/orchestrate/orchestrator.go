// Package orchestrate owns the request path: it validates incoming audio,
// defaults the session id, runs the compiled chain, and aggregates the
// outcome the caller sees.
package orchestrate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// DefaultSampleRateHz is assumed when the caller omits the rate.
const DefaultSampleRateHz = 16000

// Request is one transcription request as received from any transport.
type Request struct {
	SessionID    string    `json:"session_id"`
	Samples      []float32 `json:"samples"`
	SampleRateHz int       `json:"sample_rate_hz"`
	LanguageHint string    `json:"language_hint,omitempty"`
}

type Orchestrator struct {
	engine   *pipeline.Engine
	log      *slog.Logger
	requests metric.Int64Counter
}

func New(engine *pipeline.Engine, log *slog.Logger) *Orchestrator {
	o := &Orchestrator{engine: engine, log: log}
	meter := otel.Meter("github.com/voxpipe-ai/voxpipe/orchestrate")
	counter, err := meter.Int64Counter(
		"voxpipe.requests",
		metric.WithDescription("Transcription requests by outcome"),
	)
	if err != nil {
		log.Warn("failed to create request counter", slog.String("error", err.Error()))
	} else {
		o.requests = counter
	}
	return o
}

func (o *Orchestrator) countRequest(ctx context.Context, err error) {
	if o.requests == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if kind := pipeline.KindOf(err); kind != "" {
			outcome = string(kind)
		}
	}
	o.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Pipeline exposes the compiled chain for introspection endpoints.
func (o *Orchestrator) Pipeline() *pipeline.CompiledPipeline {
	return o.engine.Pipeline()
}

// Transcribe runs one request through the chain. The session id survives
// unchanged end to end; an empty one gets a fresh UUID before the first
// step runs.
func (o *Orchestrator) Transcribe(ctx context.Context, req Request) (pipeline.Result, error) {
	result, err := o.transcribe(ctx, req)
	o.countRequest(ctx, err)
	return result, err
}

func (o *Orchestrator) transcribe(ctx context.Context, req Request) (pipeline.Result, error) {
	if len(req.Samples) == 0 {
		return pipeline.Result{}, pipeline.NewError(pipeline.KindInvalidAudio, "no audio samples provided")
	}
	if req.SampleRateHz == 0 {
		req.SampleRateHz = DefaultSampleRateHz
	}
	if req.SampleRateHz < 0 {
		return pipeline.Result{}, pipeline.NewError(pipeline.KindInvalidAudio, "sample rate %d is not valid", req.SampleRateHz)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	req.LanguageHint = strings.ToLower(strings.TrimSpace(req.LanguageHint))
	if req.LanguageHint == "auto" {
		req.LanguageHint = ""
	}

	ex := &pipeline.Exchange{
		SessionID:    req.SessionID,
		LanguageHint: req.LanguageHint,
		Audio: pipeline.AudioBuffer{
			SampleRateHz: req.SampleRateHz,
			Samples:      req.Samples,
		},
	}

	if err := o.engine.Run(ctx, ex); err != nil {
		return pipeline.Result{}, err
	}
	if ex.Transcript == nil {
		return pipeline.Result{}, pipeline.NewError(pipeline.KindInferenceFailed,
			"pipeline produced no transcript for session %s", ex.SessionID)
	}

	words := ex.AlignedWords
	if words == nil {
		words = []pipeline.AlignedWord{}
	}
	result := pipeline.Result{
		SessionID:    ex.SessionID,
		Transcript:   *ex.Transcript,
		AlignedWords: words,
		Text:         ex.Transcript.FlatText(),
	}
	o.log.Debug("request completed",
		slog.String("session_id", result.SessionID),
		slog.Int("aligned_words", len(result.AlignedWords)))
	return result, nil
}
