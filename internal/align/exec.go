package align

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
	cfg config.Wav2Vec2Config
	mu  sync.Mutex
}

type execAlignResult struct {
	Words []pipeline.AlignedWord `json:"words"`
}

// NewExecPort builds a backend that shells out to an external aligner.
// The command receives a temp WAV path, gets the transcript as JSON on
// stdin, and must print a JSON object with a "words" array on stdout.
func NewExecPort(cfg config.Wav2Vec2Config) (Port, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse wav2vec2 command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("wav2vec2 command is empty")
	}
	return &execPort{cmd: args, cfg: cfg}, nil
}

func (p *execPort) Align(ctx context.Context, req Request) ([]pipeline.AlignedWord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "voxpipe_align_*.wav")
	if err != nil {
		return nil, pipeline.WrapError(pipeline.KindInferenceFailed, fmt.Errorf("temp file: %w", err))
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writeBufferToWav(file, req.Audio); err != nil {
		return nil, pipeline.WrapError(pipeline.KindInferenceFailed, err)
	}

	transcriptJSON, err := json.Marshal(req.Transcript)
	if err != nil {
		return nil, pipeline.WrapError(pipeline.KindInferenceFailed, fmt.Errorf("encode transcript: %w", err))
	}

	args := append([]string{}, p.cmd...)
	base := args[0]
	cmdArgs := args[1:]
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if p.cfg.Device != "" {
		cmdArgs = append(cmdArgs, "--device", p.cfg.Device)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	command.Stdin = bytes.NewReader(transcriptJSON)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pipeline.WrapError(pipeline.KindInferenceFailed,
			fmt.Errorf("wav2vec2 command failed: %w: %s", err, stderr.String()))
	}

	var resp execAlignResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, pipeline.WrapError(pipeline.KindInferenceFailed,
			fmt.Errorf("decode wav2vec2 response: %w", err))
	}
	if resp.Words == nil {
		resp.Words = []pipeline.AlignedWord{}
	}
	return resp.Words, nil
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
