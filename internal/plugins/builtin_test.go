package plugins

import (
	"log/slog"
	"testing"

	"github.com/voxpipe-ai/voxpipe/internal/config"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestBuildRegistryRegistersAllSteps(t *testing.T) {
	registry, err := BuildRegistry(config.Default().Pipeline, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, step := range []string{
		config.StepAudioClamp,
		config.StepResample,
		config.StepTokenAlignment,
		config.StepWhisper,
		config.StepWav2Vec2,
	} {
		if _, _, ok := registry.Resolve(step); !ok {
			t.Fatalf("step %q not registered", step)
		}
	}
}

func TestDefaultBackendsArePlaceholders(t *testing.T) {
	registry, err := BuildRegistry(config.Default().Pipeline, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !registry.IsPlaceholder(config.StepWhisper) {
		t.Fatal("expected whisper placeholder when no backend is configured")
	}
	if !registry.IsPlaceholder(config.StepWav2Vec2) {
		t.Fatal("expected wav2vec2 placeholder when no backend is configured")
	}
	if registry.IsPlaceholder(config.StepAudioClamp) {
		t.Fatal("audio_clamp must be a real registration")
	}
}

func TestRealBackendOverridesPlaceholder(t *testing.T) {
	cfg := config.Default().Pipeline
	cfg.Plugins.Wav2Vec2.Mode = "exec"
	cfg.Plugins.Wav2Vec2.Command = "aligner --json"

	registry, err := BuildRegistry(cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.IsPlaceholder(config.StepWav2Vec2) {
		t.Fatal("configured exec backend must override the placeholder")
	}
}

func TestBuildRegistryRejectsBrokenBackendConfig(t *testing.T) {
	cfg := config.Default().Pipeline
	cfg.Plugins.Whisper.Mode = "exec"
	cfg.Plugins.Whisper.Command = ""

	if _, err := BuildRegistry(cfg, testLogger()); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}

func TestRegisteredCapabilitiesMatchStepRoles(t *testing.T) {
	registry, err := BuildRegistry(config.Default().Pipeline, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expect := map[string]pipeline.Capability{
		config.StepAudioClamp:     pipeline.CapabilityTransform,
		config.StepResample:       pipeline.CapabilityTransform,
		config.StepTokenAlignment: pipeline.CapabilityAlignment,
		config.StepWhisper:        pipeline.CapabilityTranscription,
		config.StepWav2Vec2:       pipeline.CapabilityAlignment,
	}
	for step, capability := range expect {
		_, got, ok := registry.Resolve(step)
		if !ok || got != capability {
			t.Fatalf("step %q: capability %q, want %q", step, got, capability)
		}
	}
}
