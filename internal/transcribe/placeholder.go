package transcribe

import (
	"context"

	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// Placeholder stands in when no real backend is configured. It always
// succeeds with a fixed transcript so pipelines stay runnable.
type Placeholder struct{}

func (Placeholder) Transcribe(_ context.Context, req Request) (pipeline.Transcript, error) {
	endMS := int64(0)
	if req.Audio.SampleRateHz > 0 {
		endMS = int64(len(req.Audio.Samples)) * 1000 / int64(req.Audio.SampleRateHz)
	}
	return pipeline.Transcript{
		Segments: []pipeline.TranscriptSegment{
			{Text: PlaceholderText, StartMS: 0, EndMS: endMS},
		},
	}, nil
}
