package transcribe

import (
	"context"

	"github.com/voxpipe-ai/voxpipe/internal/audio"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// Stage adapts a Port to the pipeline contract.
type Stage struct {
	name string
	port Port
}

func NewStage(name string, port Port) *Stage {
	return &Stage{name: name, port: port}
}

func (s *Stage) Name() string                    { return s.name }
func (s *Stage) Capability() pipeline.Capability { return pipeline.CapabilityTranscription }

func (s *Stage) Run(ctx context.Context, ex *pipeline.Exchange) error {
	if err := audio.ValidateBuffer(ex.Audio); err != nil {
		return err
	}
	transcript, err := s.port.Transcribe(ctx, Request{Audio: ex.Audio, LanguageHint: ex.LanguageHint})
	if err != nil {
		return err
	}
	ex.Transcript = &transcript
	return nil
}
