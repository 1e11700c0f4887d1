package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"github.com/voxpipe-ai/voxpipe/internal/orchestrate"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	var (
		sessionID string
		language  string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Transcribe a WAV file through the server's pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, sampleRate, err := loadWav(args[0])
			if err != nil {
				return err
			}
			app.logger.Debug("loaded audio",
				slog.String("path", args[0]),
				slog.Int("samples", len(samples)),
				slog.Int("sample_rate_hz", sampleRate))

			stop := startSpinner(app.progressEnabled(), "transcribing")
			result, err := postTranscribe(app.server, orchestrate.Request{
				SessionID:    sessionID,
				Samples:      samples,
				SampleRateHz: sampleRate,
				LanguageHint: language,
			})
			stop()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(result)
			}
			fmt.Fprintln(out, result.Text)
			for _, word := range result.AlignedWords {
				fmt.Fprintf(out, "%8dms %8dms  %s\n", word.StartMS, word.EndMS, word.Word)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (server assigns a UUID when empty)")
	cmd.Flags().StringVar(&language, "language", "", "Language hint passed to the transcription backend")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full result as JSON")

	return cmd
}

// loadWav decodes a WAV file into mono float samples. Multi-channel input
// is downmixed by averaging.
func loadWav(path string) ([]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, 0, fmt.Errorf("wav file has no format information")
	}
	if decoder.BitDepth == 0 {
		return nil, 0, fmt.Errorf("wav file reports invalid bit depth")
	}

	channels := buf.Format.NumChannels
	scale := float32(int(1) << (decoder.BitDepth - 1))
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for frame := 0; frame < frames; frame++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[frame*channels+ch]) / scale
		}
		samples[frame] = sum / float32(channels)
	}
	return samples, buf.Format.SampleRate, nil
}

func postTranscribe(server string, req orchestrate.Request) (pipeline.Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("encode request: %w", err)
	}

	resp, err := http.Post(server+"/v1/transcribe", "application/json", bytes.NewReader(payload))
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("call server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Kind != "" {
			return pipeline.Result{}, fmt.Errorf("server rejected request (%s): %s", errResp.Error.Kind, errResp.Error.Message)
		}
		return pipeline.Result{}, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var result pipeline.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return pipeline.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}
