// Package plugins wires the configured step implementations into a
// pipeline registry. Transcription and alignment names always get a
// labeled placeholder first; a real backend registered under the same
// name takes priority.
package plugins

import (
	"fmt"
	"log/slog"

	"github.com/voxpipe-ai/voxpipe/internal/align"
	"github.com/voxpipe-ai/voxpipe/internal/audio"
	"github.com/voxpipe-ai/voxpipe/internal/config"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
	"github.com/voxpipe-ai/voxpipe/internal/transcribe"
)

// Definitions converts the configured pipeline definitions into their
// compiler form.
func Definitions(cfg config.PipelineConfig) map[string]pipeline.Definition {
	definitions := make(map[string]pipeline.Definition, len(cfg.Definitions))
	for name, def := range cfg.Definitions {
		definitions[name] = pipeline.Definition{
			Pre:           def.Pre,
			Transcription: def.Transcription,
			Post:          def.Post,
		}
	}
	return definitions
}

// BuildRegistry registers every built-in step. Backends are constructed
// once here and shared by all stage instances the factories hand out.
func BuildRegistry(cfg config.PipelineConfig, log *slog.Logger) (*pipeline.Registry, error) {
	registry := pipeline.NewRegistry()

	registry.Register(config.StepAudioClamp, pipeline.CapabilityTransform, func() (pipeline.Stage, error) {
		return audio.NewStage(config.StepAudioClamp, audio.Clamp{}), nil
	})

	targetRate := cfg.Plugins.Resample.TargetSampleRateHz
	registry.Register(config.StepResample, pipeline.CapabilityTransform, func() (pipeline.Stage, error) {
		return audio.NewStage(config.StepResample, audio.NewResampler(targetRate)), nil
	})

	minWordDuration := int64(cfg.Plugins.TokenAlignment.MinWordDurationMS)
	registry.Register(config.StepTokenAlignment, pipeline.CapabilityAlignment, func() (pipeline.Stage, error) {
		return align.NewStage(config.StepTokenAlignment, align.NewHeuristic(minWordDuration), 0), nil
	})

	registry.RegisterPlaceholder(config.StepWhisper, pipeline.CapabilityTranscription, func() (pipeline.Stage, error) {
		return transcribe.NewStage(config.StepWhisper, transcribe.Placeholder{}), nil
	})
	transcriber, transcriberPlaceholder, err := transcribe.NewPort(cfg.Plugins.Whisper, log)
	if err != nil {
		return nil, fmt.Errorf("build transcription backend: %w", err)
	}
	if !transcriberPlaceholder {
		registry.Register(config.StepWhisper, pipeline.CapabilityTranscription, func() (pipeline.Stage, error) {
			return transcribe.NewStage(config.StepWhisper, transcriber), nil
		})
	}

	registry.RegisterPlaceholder(config.StepWav2Vec2, pipeline.CapabilityAlignment, func() (pipeline.Stage, error) {
		return align.NewStage(config.StepWav2Vec2, align.Placeholder{}, 0), nil
	})
	aligner, alignerPlaceholder, err := align.NewPort(cfg.Plugins.Wav2Vec2, log)
	if err != nil {
		return nil, fmt.Errorf("build alignment backend: %w", err)
	}
	if !alignerPlaceholder {
		registry.Register(config.StepWav2Vec2, pipeline.CapabilityAlignment, func() (pipeline.Stage, error) {
			return align.NewStage(config.StepWav2Vec2, aligner, align.RequiredSampleRateHz), nil
		})
	}

	return registry, nil
}
