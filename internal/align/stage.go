package align

import (
	"context"

	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// Stage adapts a Port to the pipeline contract. requiredRateHz gates the
// input rate for acoustic backends; zero means any rate is accepted.
type Stage struct {
	name           string
	port           Port
	requiredRateHz int
}

func NewStage(name string, port Port, requiredRateHz int) *Stage {
	return &Stage{name: name, port: port, requiredRateHz: requiredRateHz}
}

func (s *Stage) Name() string                    { return s.name }
func (s *Stage) Capability() pipeline.Capability { return pipeline.CapabilityAlignment }

func (s *Stage) Run(ctx context.Context, ex *pipeline.Exchange) error {
	if ex.Transcript == nil {
		return pipeline.NewError(pipeline.KindInferenceFailed, "no transcript available")
	}
	if s.requiredRateHz > 0 && ex.Audio.SampleRateHz != s.requiredRateHz {
		return pipeline.NewError(pipeline.KindUnsupportedSampleRate,
			"aligner requires %d Hz input, got %d Hz", s.requiredRateHz, ex.Audio.SampleRateHz)
	}
	words, err := s.port.Align(ctx, Request{Audio: ex.Audio, Transcript: *ex.Transcript})
	if err != nil {
		return err
	}
	if words == nil {
		words = []pipeline.AlignedWord{}
	}
	ex.AlignedWords = words
	return nil
}
