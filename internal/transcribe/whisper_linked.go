//go:build whisper

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/voxpipe-ai/voxpipe/internal/config"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

const nativeSupported = true

// whisper.cpp only accepts 16 kHz mono input.
const nativeSampleRateHz = 16000

type nativePort struct {
	model whisper.Model
	cfg   config.WhisperConfig
	log   *slog.Logger
	mu    sync.Mutex
}

// NewNativePort loads a ggml model through the whisper.cpp bindings.
func NewNativePort(cfg config.WhisperConfig, log *slog.Logger) (Port, error) {
	if cfg.ModelPath == "" {
		return nil, pipeline.NewError(pipeline.KindBackendUnavailable, "whisper model path is required for native mode")
	}
	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, pipeline.WrapError(pipeline.KindBackendUnavailable,
			fmt.Errorf("load whisper model %s: %w", cfg.ModelPath, err))
	}
	log.Info("loaded whisper model", "path", cfg.ModelPath)
	return &nativePort{model: model, cfg: cfg, log: log}, nil
}

func (p *nativePort) Transcribe(ctx context.Context, req Request) (pipeline.Transcript, error) {
	if req.Audio.SampleRateHz != nativeSampleRateHz {
		return pipeline.Transcript{}, pipeline.NewError(pipeline.KindUnsupportedSampleRate,
			"whisper requires %d Hz input, got %d Hz", nativeSampleRateHz, req.Audio.SampleRateHz)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return pipeline.Transcript{}, pipeline.WrapError(pipeline.KindInferenceFailed,
			fmt.Errorf("whisper context: %w", err))
	}

	language := req.LanguageHint
	if language == "" {
		language = p.cfg.Language
	}
	if language != "" && language != "auto" {
		if err := wctx.SetLanguage(language); err != nil {
			return pipeline.Transcript{}, pipeline.WrapError(pipeline.KindInferenceFailed,
				fmt.Errorf("set whisper language %q: %w", language, err))
		}
	}
	if p.cfg.Threads > 0 {
		wctx.SetThreads(uint(p.cfg.Threads))
	}

	if err := wctx.Process(req.Audio.Samples, nil, nil, nil); err != nil {
		if ctx.Err() != nil {
			return pipeline.Transcript{}, ctx.Err()
		}
		return pipeline.Transcript{}, pipeline.WrapError(pipeline.KindInferenceFailed,
			fmt.Errorf("whisper inference: %w", err))
	}

	transcript := pipeline.Transcript{Language: language}
	for {
		if ctx.Err() != nil {
			return pipeline.Transcript{}, ctx.Err()
		}
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return pipeline.Transcript{}, pipeline.WrapError(pipeline.KindInferenceFailed,
				fmt.Errorf("read whisper segment: %w", err))
		}
		out := pipeline.TranscriptSegment{
			Text:    segment.Text,
			StartMS: segment.Start.Milliseconds(),
			EndMS:   segment.End.Milliseconds(),
		}
		for _, token := range segment.Tokens {
			out.Tokens = append(out.Tokens, pipeline.TranscriptToken{
				Text:       token.Text,
				StartMS:    token.Start.Milliseconds(),
				EndMS:      token.End.Milliseconds(),
				Confidence: token.P,
			})
		}
		transcript.Segments = append(transcript.Segments, out)
	}
	return transcript, nil
}
