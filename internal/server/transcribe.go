package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/voxpipe-ai/voxpipe/internal/orchestrate"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req orchestrate.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, pipeline.NewError(pipeline.KindInvalidAudio, "decode request: %v", err))
		return
	}

	result, err := s.orchestrator.Transcribe(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type pipelineStepView struct {
	Name        string `json:"name"`
	Capability  string `json:"capability"`
	Remote      bool   `json:"remote"`
	Placeholder bool   `json:"placeholder"`
}

type pipelineView struct {
	Name  string             `json:"name"`
	Steps []pipelineStepView `json:"steps"`
}

func (s *Server) handlePipeline(w http.ResponseWriter, _ *http.Request) {
	compiled := s.orchestrator.Pipeline()
	view := pipelineView{Name: compiled.Name, Steps: []pipelineStepView{}}
	for _, step := range compiled.Steps() {
		view.Steps = append(view.Steps, pipelineStepView{
			Name:        step.Name,
			Capability:  string(step.Capability),
			Remote:      step.Remote,
			Placeholder: s.registry.IsPlaceholder(step.Name),
		})
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := pipeline.KindOf(err)
	body := errorBody{Kind: string(kind), Message: err.Error()}
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		body.Step = perr.Step
	}
	s.writeJSON(w, statusForKind(kind), errorResponse{Error: body})
}

func statusForKind(kind pipeline.ErrorKind) int {
	switch kind {
	case pipeline.KindInvalidAudio, pipeline.KindUnsupportedSampleRate:
		return http.StatusBadRequest
	case pipeline.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case pipeline.KindBackendUnavailable:
		return http.StatusServiceUnavailable
	case pipeline.KindInferenceFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
