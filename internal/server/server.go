// Package server exposes the HTTP surface: one-shot transcription,
// pipeline introspection, a websocket streaming endpoint, health probes,
// and Prometheus metrics.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/voxpipe-ai/voxpipe/internal/orchestrate"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

type Server struct {
	orchestrator *orchestrate.Orchestrator
	registry     *pipeline.Registry
	log          *slog.Logger
	ready        func() bool
	metrics      http.Handler
	upgrader     websocket.Upgrader
}

func New(orchestrator *orchestrate.Orchestrator, registry *pipeline.Registry, ready func() bool, metrics http.Handler, log *slog.Logger) *Server {
	return &Server{
		orchestrator: orchestrator,
		registry:     registry,
		log:          log,
		ready:        ready,
		metrics:      metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/v1/transcribe", s.handleTranscribe).Methods(http.MethodPost)
	router.HandleFunc("/v1/pipeline", s.handlePipeline).Methods(http.MethodGet)
	router.HandleFunc("/v1/stream", s.handleStream)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready == nil || s.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
