package transcribe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxpipe-ai/voxpipe/internal/config"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// PlaceholderText is emitted when no transcription backend is configured.
const PlaceholderText = "transcription disabled"

// Request carries the audio handed to a transcription backend.
type Request struct {
	Audio        pipeline.AudioBuffer
	LanguageHint string
}

// Port abstracts transcription backends.
type Port interface {
	Transcribe(ctx context.Context, req Request) (pipeline.Transcript, error)
}

// NewPort builds the transcription backend selected by the config. The
// returned bool reports whether the port is the placeholder.
func NewPort(cfg config.WhisperConfig, log *slog.Logger) (Port, bool, error) {
	if !cfg.Enabled || cfg.Mode == "placeholder" {
		return Placeholder{}, true, nil
	}

	switch cfg.Mode {
	case "native":
		port, err := NewNativePort(cfg, log)
		if err != nil {
			return nil, false, err
		}
		return port, false, nil
	case "exec":
		port, err := NewExecPort(cfg)
		if err != nil {
			return nil, false, err
		}
		return port, false, nil
	case "auto", "":
		if nativeSupported && cfg.ModelPath != "" {
			port, err := NewNativePort(cfg, log)
			if err == nil {
				return port, false, nil
			}
			log.Warn("native whisper backend unavailable, trying fallbacks", "error", err)
		}
		if cfg.Command != "" {
			port, err := NewExecPort(cfg)
			if err != nil {
				return nil, false, err
			}
			return port, false, nil
		}
		log.Info("no whisper backend configured, using placeholder transcription")
		return Placeholder{}, true, nil
	default:
		return nil, false, fmt.Errorf("unknown whisper mode %q", cfg.Mode)
	}
}
