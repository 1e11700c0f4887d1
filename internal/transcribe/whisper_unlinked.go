//go:build !whisper

package transcribe

import (
	"log/slog"

	"github.com/voxpipe-ai/voxpipe/internal/config"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

const nativeSupported = false

// NewNativePort reports that the binary was built without whisper.cpp
// support. Build with -tags whisper to link the native backend.
func NewNativePort(_ config.WhisperConfig, _ *slog.Logger) (Port, error) {
	return nil, pipeline.NewError(pipeline.KindBackendUnavailable,
		"native whisper backend not compiled in; rebuild with -tags whisper")
}
