package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.Selected != "default" {
		t.Fatalf("expected default pipeline, got %q", cfg.Pipeline.Selected)
	}
	def, ok := cfg.Pipeline.Definitions["default"]
	if !ok {
		t.Fatal("expected default pipeline definition")
	}
	if def.Transcription != StepWhisper {
		t.Fatalf("expected %s transcription step, got %q", StepWhisper, def.Transcription)
	}
	if cfg.Pipeline.Plugins.Resample.TargetSampleRateHz != 16000 {
		t.Fatalf("expected 16000 Hz resample target, got %d", cfg.Pipeline.Plugins.Resample.TargetSampleRateHz)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXPIPE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOXPIPE_BUS_EMBEDDED", "false")
	t.Setenv("VOXPIPE_NODE_ID", "test-node")
	t.Setenv("VOXPIPE_SERVE_STEPS", "resample, whisper_transcription")
	t.Setenv("VOXPIPE_PLUGIN_RESAMPLE_ENABLED", "false")
	t.Setenv("VOXPIPE_PLUGIN_WHISPER_LOCALITY", "remote")
	t.Setenv("VOXPIPE_REMOTE_REQUEST_TIMEOUT_MS", "2500")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Embedded {
		t.Fatal("expected embedded bus override to false")
	}
	if cfg.Node.ID != "test-node" {
		t.Fatalf("expected node id override, got %q", cfg.Node.ID)
	}
	if len(cfg.Serve.Steps) != 2 || cfg.Serve.Steps[1] != StepWhisper {
		t.Fatalf("expected serve steps override, got %v", cfg.Serve.Steps)
	}
	if cfg.Pipeline.StepEnabled(StepResample) {
		t.Fatal("expected resample to be disabled")
	}
	if !cfg.Pipeline.StepRemote(StepWhisper) {
		t.Fatal("expected whisper step to be remote")
	}
	if cfg.Remote.RequestTimeout != 2500 {
		t.Fatalf("expected request timeout 2500, got %d", cfg.Remote.RequestTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	raw := `
pipeline:
  selected: custom
  definitions:
    custom:
      pre: [resample]
      transcription: whisper_transcription
      post: []
  plugins:
    resample:
      target_sample_rate_hz: 8000
`
	path := filepath.Join(t.TempDir(), "voxpipe.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.Selected != "custom" {
		t.Fatalf("expected custom pipeline, got %q", cfg.Pipeline.Selected)
	}
	if cfg.Pipeline.Plugins.Resample.TargetSampleRateHz != 8000 {
		t.Fatalf("expected 8000 Hz override, got %d", cfg.Pipeline.Plugins.Resample.TargetSampleRateHz)
	}
	// Fields the file does not mention keep their defaults.
	if !cfg.Pipeline.Plugins.Resample.Enabled {
		t.Fatal("expected resample to stay enabled")
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("expected default http port, got %d", cfg.HTTP.Port)
	}
}

func TestEveryStepCanBeMarkedRemote(t *testing.T) {
	t.Setenv("VOXPIPE_PLUGIN_AUDIO_CLAMP_LOCALITY", "remote")
	t.Setenv("VOXPIPE_PLUGIN_RESAMPLE_LOCALITY", "remote")
	t.Setenv("VOXPIPE_PLUGIN_TOKEN_ALIGNMENT_LOCALITY", "remote")
	t.Setenv("VOXPIPE_PLUGIN_WHISPER_LOCALITY", "remote")
	t.Setenv("VOXPIPE_PLUGIN_WAV2VEC2_LOCALITY", "remote")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, step := range []string{StepAudioClamp, StepResample, StepTokenAlignment, StepWhisper, StepWav2Vec2} {
		if !cfg.Pipeline.StepRemote(step) {
			t.Fatalf("expected step %q to be remote", step)
		}
	}
	if cfg.Pipeline.StepRemote("unknown_step") {
		t.Fatal("unknown steps must default to local")
	}
}

func TestValidateRejectsBadLocality(t *testing.T) {
	t.Setenv("VOXPIPE_PLUGIN_RESAMPLE_LOCALITY", "edge")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid resample locality")
	}
}

func TestValidateRejectsBadPluginMode(t *testing.T) {
	t.Setenv("VOXPIPE_PLUGIN_WHISPER_MODE", "gpu")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid whisper mode")
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("VOXPIPE_PLUGIN_WAV2VEC2_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}
