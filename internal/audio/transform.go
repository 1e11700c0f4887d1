// Package audio provides the transform capability: deterministic,
// side-effect-free pre-steps applied to the request's audio buffer before
// transcription.
package audio

import (
	"context"

	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// Transform is the transform port: pure over well-formed input.
type Transform interface {
	Apply(ctx context.Context, buf pipeline.AudioBuffer) (pipeline.AudioBuffer, error)
}

// ValidateBuffer rejects empty buffers and non-positive sample rates.
func ValidateBuffer(buf pipeline.AudioBuffer) error {
	if buf.Empty() {
		return pipeline.NewError(pipeline.KindInvalidAudio, "audio buffer is empty")
	}
	if buf.SampleRateHz <= 0 {
		return pipeline.NewError(pipeline.KindInvalidAudio, "sample rate must be positive, got %d", buf.SampleRateHz)
	}
	return nil
}

// Clamp limits every sample to [-1, 1]. Out-of-range values show up when
// callers convert integer PCM carelessly; clamping keeps downstream
// backends from seeing garbage peaks.
type Clamp struct{}

func (Clamp) Apply(_ context.Context, buf pipeline.AudioBuffer) (pipeline.AudioBuffer, error) {
	if err := ValidateBuffer(buf); err != nil {
		return buf, err
	}
	for i, sample := range buf.Samples {
		if sample > 1 {
			buf.Samples[i] = 1
		} else if sample < -1 {
			buf.Samples[i] = -1
		}
	}
	return buf, nil
}

// Resampler converts a buffer to the target rate by linear interpolation.
// Good enough for speech backends; not a general-purpose DSP resampler.
type Resampler struct {
	TargetRateHz int
}

func NewResampler(targetRateHz int) Resampler {
	return Resampler{TargetRateHz: targetRateHz}
}

func (r Resampler) Apply(_ context.Context, buf pipeline.AudioBuffer) (pipeline.AudioBuffer, error) {
	if err := ValidateBuffer(buf); err != nil {
		return buf, err
	}
	if r.TargetRateHz <= 0 {
		return buf, pipeline.NewError(pipeline.KindInvalidAudio, "target sample rate must be positive, got %d", r.TargetRateHz)
	}
	if buf.SampleRateHz == r.TargetRateHz {
		return buf, nil
	}

	ratio := float64(buf.SampleRateHz) / float64(r.TargetRateHz)
	outLen := int(float64(len(buf.Samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(buf.Samples)-1 {
			out[i] = buf.Samples[len(buf.Samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = buf.Samples[idx]*(1-frac) + buf.Samples[idx+1]*frac
	}

	return pipeline.AudioBuffer{SampleRateHz: r.TargetRateHz, Samples: out}, nil
}

// Stage adapts a Transform to the pipeline's Stage contract.
type Stage struct {
	name      string
	transform Transform
}

func NewStage(name string, transform Transform) *Stage {
	return &Stage{name: name, transform: transform}
}

func (s *Stage) Name() string                  { return s.name }
func (s *Stage) Capability() pipeline.Capability { return pipeline.CapabilityTransform }

func (s *Stage) Run(ctx context.Context, ex *pipeline.Exchange) error {
	transformed, err := s.transform.Apply(ctx, ex.Audio)
	if err != nil {
		return err
	}
	ex.Audio = transformed
	return nil
}
