// Package align provides alignment backends that attach per-word timings
// to a transcript.
package align

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxpipe-ai/voxpipe/internal/config"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// RequiredSampleRateHz is the input rate acoustic aligners expect.
const RequiredSampleRateHz = 16000

// Request carries the transcript and the audio it was produced from.
type Request struct {
	Audio      pipeline.AudioBuffer
	Transcript pipeline.Transcript
}

// Port abstracts alignment backends.
type Port interface {
	Align(ctx context.Context, req Request) ([]pipeline.AlignedWord, error)
}

// NewPort builds the acoustic alignment backend selected by the config.
// The returned bool reports whether the port is the placeholder.
func NewPort(cfg config.Wav2Vec2Config, log *slog.Logger) (Port, bool, error) {
	if !cfg.Enabled || cfg.Mode == "placeholder" {
		return Placeholder{}, true, nil
	}

	switch cfg.Mode {
	case "exec":
		port, err := NewExecPort(cfg)
		if err != nil {
			return nil, false, err
		}
		return port, false, nil
	case "auto", "":
		if cfg.Command != "" {
			port, err := NewExecPort(cfg)
			if err != nil {
				return nil, false, err
			}
			return port, false, nil
		}
		log.Info("no wav2vec2 backend configured, using placeholder alignment")
		return Placeholder{}, true, nil
	default:
		return nil, false, fmt.Errorf("unknown wav2vec2 mode %q", cfg.Mode)
	}
}
