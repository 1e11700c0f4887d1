package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
	"github.com/voxpipe-ai/voxpipe/internal/config"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

type execPort struct {
	cmd []string
	cfg config.WhisperConfig
	mu  sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// NewExecPort builds a backend that shells out to an external transcriber.
// The command receives a temp WAV path plus model and language flags and
// must print a JSON object with the transcript text on stdout.
func NewExecPort(cfg config.WhisperConfig) (Port, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse whisper command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("whisper command is empty")
	}
	return &execPort{cmd: args, cfg: cfg}, nil
}

func (p *execPort) Transcribe(ctx context.Context, req Request) (pipeline.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "voxpipe_stt_*.wav")
	if err != nil {
		return pipeline.Transcript{}, pipeline.WrapError(pipeline.KindInferenceFailed, fmt.Errorf("temp file: %w", err))
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writeBufferToWav(file, req.Audio); err != nil {
		return pipeline.Transcript{}, pipeline.WrapError(pipeline.KindInferenceFailed, err)
	}

	args := append([]string{}, p.cmd...)
	base := args[0]
	cmdArgs := args[1:]
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if p.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", p.cfg.ModelPath)
	}
	language := req.LanguageHint
	if language == "" {
		language = p.cfg.Language
	}
	if language != "" {
		cmdArgs = append(cmdArgs, "--language", language)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return pipeline.Transcript{}, ctx.Err()
		}
		return pipeline.Transcript{}, pipeline.WrapError(pipeline.KindInferenceFailed,
			fmt.Errorf("whisper command failed: %w: %s", err, stderr.String()))
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return pipeline.Transcript{}, pipeline.WrapError(pipeline.KindInferenceFailed,
			fmt.Errorf("decode whisper response: %w", err))
	}

	endMS := int64(0)
	if req.Audio.SampleRateHz > 0 {
		endMS = int64(len(req.Audio.Samples)) * 1000 / int64(req.Audio.SampleRateHz)
	}
	return pipeline.Transcript{
		Language: resp.Language,
		Segments: []pipeline.TranscriptSegment{
			{Text: resp.Text, StartMS: 0, EndMS: endMS},
		},
	}, nil
}

func writeBufferToWav(file *os.File, buf pipeline.AudioBuffer) error {
	samples := make([]int, len(buf.Samples))
	for i, sample := range buf.Samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		samples[i] = int(sample * 32767)
	}

	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: buf.SampleRateHz},
		Data:   samples,
	}
	enc := wav.NewEncoder(file, buf.SampleRateHz, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
