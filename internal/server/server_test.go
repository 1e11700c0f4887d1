package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/voxpipe-ai/voxpipe/internal/config"
	"github.com/voxpipe-ai/voxpipe/internal/orchestrate"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
	"github.com/voxpipe-ai/voxpipe/internal/plugins"
	"github.com/voxpipe-ai/voxpipe/internal/transcribe"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default().Pipeline
	registry, err := plugins.BuildRegistry(cfg, testLogger())
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	compiled, err := pipeline.Compile(cfg.Selected, plugins.Definitions(cfg), registry, pipeline.CompileOptions{
		Disabled: func(step string) bool { return !cfg.StepEnabled(step) },
	})
	if err != nil {
		t.Fatalf("compile pipeline: %v", err)
	}
	orchestrator := orchestrate.New(pipeline.NewEngine(compiled, testLogger()), testLogger())
	return New(orchestrator, registry, func() bool { return true }, nil, testLogger())
}

func TestTranscribeEndpoint(t *testing.T) {
	srv := testServer(t)

	body, _ := json.Marshal(orchestrate.Request{
		SessionID:    "http-session",
		Samples:      []float32{0.0, 0.1, 0.2},
		SampleRateHz: 16000,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/transcribe", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var result pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.SessionID != "http-session" {
		t.Fatalf("session id rewritten to %q", result.SessionID)
	}
	if result.Text != transcribe.PlaceholderText {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if result.AlignedWords == nil {
		t.Fatal("aligned_words must be present, not null")
	}
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/transcribe", strings.NewReader(`{"session_id":"s"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error.Kind != string(pipeline.KindInvalidAudio) {
		t.Fatalf("kind %q, want invalid_audio", resp.Error.Kind)
	}
}

func TestPipelineIntrospection(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/pipeline", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var view pipelineView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Name != "default" {
		t.Fatalf("pipeline name %q", view.Name)
	}
	var sawPlaceholderTranscription bool
	for _, step := range view.Steps {
		if step.Name == config.StepWhisper && step.Placeholder {
			sawPlaceholderTranscription = true
		}
	}
	if !sawPlaceholderTranscription {
		t.Fatalf("expected whisper step flagged as placeholder: %+v", view.Steps)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := testServer(t)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status %d", rec.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		kind pipeline.ErrorKind
		want int
	}{
		{pipeline.KindInvalidAudio, http.StatusBadRequest},
		{pipeline.KindUnsupportedSampleRate, http.StatusBadRequest},
		{pipeline.KindUpstreamTimeout, http.StatusGatewayTimeout},
		{pipeline.KindBackendUnavailable, http.StatusServiceUnavailable},
		{pipeline.KindInferenceFailed, http.StatusBadGateway},
		{pipeline.KindUnknownPipeline, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForKind(tc.kind); got != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func dialStream(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	httpServer := httptest.NewServer(srv.Router())
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, messageType string, payload any) {
	t.Helper()
	envelope := map[string]any{"version": ProtocolVersion, "type": messageType}
	if payload != nil {
		envelope["payload"] = payload
	}
	if err := conn.WriteJSON(envelope); err != nil {
		t.Fatalf("write %s: %v", messageType, err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	var envelope struct {
		Version int             `json:"version"`
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if envelope.Version != ProtocolVersion {
		t.Fatalf("envelope version %d", envelope.Version)
	}
	return envelope.Type, envelope.Payload
}

func TestStreamHappyPath(t *testing.T) {
	conn := dialStream(t, testServer(t))

	sendEnvelope(t, conn, "start", startPayload{SessionID: "ws-session"})
	messageType, payload := readEnvelope(t, conn)
	if messageType != "ready" {
		t.Fatalf("expected ready, got %s", messageType)
	}
	var ready readyPayload
	if err := json.Unmarshal(payload, &ready); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if ready.SessionID != "ws-session" {
		t.Fatalf("session id %q", ready.SessionID)
	}

	sendEnvelope(t, conn, "audio_frame", audioFramePayload{PCMF32: []float32{0.0, 0.1}, SampleRateHz: 16000})
	sendEnvelope(t, conn, "audio_frame", audioFramePayload{PCMF32: []float32{0.2, 0.3}})
	sendEnvelope(t, conn, "flush", nil)

	messageType, payload = readEnvelope(t, conn)
	if messageType != "final_transcript" {
		t.Fatalf("expected final_transcript, got %s", messageType)
	}
	var final transcriptPayload
	if err := json.Unmarshal(payload, &final); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if final.Transcript.FlatText() != transcribe.PlaceholderText {
		t.Fatalf("unexpected transcript %q", final.Transcript.FlatText())
	}

	messageType, _ = readEnvelope(t, conn)
	if messageType != "alignment_update" {
		t.Fatalf("expected alignment_update, got %s", messageType)
	}
}

func TestStreamPingPong(t *testing.T) {
	conn := dialStream(t, testServer(t))

	sendEnvelope(t, conn, "ping", nil)
	messageType, _ := readEnvelope(t, conn)
	if messageType != "pong" {
		t.Fatalf("expected pong, got %s", messageType)
	}
}

func TestStreamRequiresStart(t *testing.T) {
	conn := dialStream(t, testServer(t))

	sendEnvelope(t, conn, "audio_frame", audioFramePayload{PCMF32: []float32{0.1}})
	messageType, payload := readEnvelope(t, conn)
	if messageType != "error" {
		t.Fatalf("expected error, got %s", messageType)
	}
	var errMsg errorPayload
	if err := json.Unmarshal(payload, &errMsg); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !strings.Contains(errMsg.Message, "start") {
		t.Fatalf("unexpected error message %q", errMsg.Message)
	}
}

func TestStreamRejectsWrongVersion(t *testing.T) {
	conn := dialStream(t, testServer(t))

	if err := conn.WriteJSON(map[string]any{"version": 99, "type": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	messageType, _ := readEnvelope(t, conn)
	if messageType != "error" {
		t.Fatalf("expected error, got %s", messageType)
	}
}
