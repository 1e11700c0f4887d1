package cli

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/voxpipe-ai/voxpipe/internal/orchestrate"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

func writeTestWav(t *testing.T, samples []int, sampleRate, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer file.Close()

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}
	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	return path
}

func TestLoadWavMono(t *testing.T) {
	path := writeTestWav(t, []int{0, 16384, -16384, 32767}, 16000, 1)

	samples, rate, err := loadWav(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("sample rate %d, want 16000", rate)
	}
	if len(samples) != 4 {
		t.Fatalf("got %d samples, want 4", len(samples))
	}
	if math.Abs(float64(samples[1]-0.5)) > 0.01 {
		t.Fatalf("sample 1 = %f, want ~0.5", samples[1])
	}
}

func TestLoadWavDownmixesStereo(t *testing.T) {
	// Interleaved stereo: left channel loud, right channel silent.
	path := writeTestWav(t, []int{16384, 0, 16384, 0}, 8000, 2)

	samples, rate, err := loadWav(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 8000 {
		t.Fatalf("sample rate %d, want 8000", rate)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2 frames", len(samples))
	}
	if math.Abs(float64(samples[0]-0.25)) > 0.01 {
		t.Fatalf("downmixed sample = %f, want ~0.25", samples[0])
	}
}

func TestLoadWavRejectsZeroBitDepth(t *testing.T) {
	var b bytes.Buffer
	le := func(v any) {
		if err := binary.Write(&b, binary.LittleEndian, v); err != nil {
			t.Fatalf("write header field: %v", err)
		}
	}
	b.WriteString("RIFF")
	le(uint32(36))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	le(uint32(16))
	le(uint16(1))     // PCM
	le(uint16(1))     // mono
	le(uint32(16000)) // sample rate
	le(uint32(0))     // byte rate
	le(uint16(0))     // block align
	le(uint16(0))     // bit depth
	b.WriteString("data")
	le(uint32(0))

	path := filepath.Join(t.TempDir(), "zero-depth.wav")
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	if _, _, err := loadWav(path); err == nil {
		t.Fatal("expected error for zero bit depth")
	}
}

func TestPostTranscribe(t *testing.T) {
	want := pipeline.Result{
		SessionID:    "cli-session",
		Text:         "hello world",
		AlignedWords: []pipeline.AlignedWord{{Word: "hello", StartMS: 0, EndMS: 200}},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req orchestrate.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SessionID != "cli-session" {
			t.Errorf("session id %q", req.SessionID)
		}
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer server.Close()

	result, err := postTranscribe(server.URL, orchestrate.Request{
		SessionID:    "cli-session",
		Samples:      []float32{0.1, 0.2},
		SampleRateHz: 16000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != want.Text || len(result.AlignedWords) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestPostTranscribeSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"kind":"invalid_audio","message":"no audio samples provided"}}`))
	}))
	defer server.Close()

	_, err := postTranscribe(server.URL, orchestrate.Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "server rejected request (invalid_audio): no audio samples provided" {
		t.Fatalf("unexpected error message %q", got)
	}
}
