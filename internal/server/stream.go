package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxpipe-ai/voxpipe/internal/orchestrate"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// ProtocolVersion is carried in every streaming envelope.
const ProtocolVersion = 1

const writeWait = 10 * time.Second

var (
	errStartFirst     = errors.New("start must be sent first")
	errUnknownMessage = errors.New("unknown message type")
)

func newSessionID() string {
	return uuid.NewString()
}

type clientEnvelope struct {
	Version int             `json:"version"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type startPayload struct {
	SessionID    string `json:"session_id,omitempty"`
	LanguageHint string `json:"language_hint,omitempty"`
}

type audioFramePayload struct {
	PCMF32       []float32 `json:"pcm_f32"`
	SampleRateHz int       `json:"sample_rate_hz,omitempty"`
}

type serverEnvelope struct {
	Version int    `json:"version"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type readyPayload struct {
	SessionID string `json:"session_id"`
}

type transcriptPayload struct {
	Transcript pipeline.Transcript `json:"transcript"`
}

type alignmentPayload struct {
	Words []pipeline.AlignedWord `json:"words"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// streamSession is the per-connection state: buffered audio waiting for
// the next flush, plus the identifiers fixed by the start message.
type streamSession struct {
	sessionID    string
	languageHint string
	sampleRateHz int
	samples      []float32
	started      bool
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	session := &streamSession{}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read error", slog.String("error", err.Error()))
			}
			return
		}

		var envelope clientEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			s.sendStream(conn, "error", errorPayload{Message: "invalid message: " + err.Error()})
			return
		}
		if envelope.Version != ProtocolVersion {
			s.sendStream(conn, "error", errorPayload{Message: "unsupported protocol version"})
			return
		}

		stop, err := s.dispatchStream(r, conn, session, envelope)
		if err != nil {
			s.sendStream(conn, "error", errorPayload{Message: err.Error()})
			return
		}
		if stop {
			return
		}
	}
}

func (s *Server) dispatchStream(r *http.Request, conn *websocket.Conn, session *streamSession, envelope clientEnvelope) (bool, error) {
	switch envelope.Type {
	case "start":
		var payload startPayload
		if len(envelope.Payload) > 0 {
			if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
				return false, err
			}
		}
		session.sessionID = payload.SessionID
		session.languageHint = payload.LanguageHint
		session.samples = nil
		session.started = true
		if session.sessionID == "" {
			// The orchestrator would mint one per flush; fixing it here keeps
			// every flush of this connection in the same session.
			session.sessionID = newSessionID()
		}
		s.sendStream(conn, "ready", readyPayload{SessionID: session.sessionID})
		return false, nil

	case "audio_frame":
		if !session.started {
			return false, errStartFirst
		}
		var payload audioFramePayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return false, err
		}
		if payload.SampleRateHz > 0 {
			session.sampleRateHz = payload.SampleRateHz
		}
		session.samples = append(session.samples, payload.PCMF32...)
		return false, nil

	case "flush", "stop":
		if !session.started {
			return false, errStartFirst
		}
		result, err := s.orchestrator.Transcribe(r.Context(), orchestrate.Request{
			SessionID:    session.sessionID,
			Samples:      session.samples,
			SampleRateHz: session.sampleRateHz,
			LanguageHint: session.languageHint,
		})
		if err != nil {
			return false, err
		}
		s.sendStream(conn, "final_transcript", transcriptPayload{Transcript: result.Transcript})
		s.sendStream(conn, "alignment_update", alignmentPayload{Words: result.AlignedWords})
		return envelope.Type == "stop", nil

	case "ping":
		s.sendStream(conn, "pong", nil)
		return false, nil

	default:
		return false, errUnknownMessage
	}
}

func (s *Server) sendStream(conn *websocket.Conn, messageType string, payload any) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	envelope := serverEnvelope{Version: ProtocolVersion, Type: messageType, Payload: payload}
	if err := conn.WriteJSON(envelope); err != nil {
		s.log.Warn("websocket write failed",
			slog.String("type", messageType),
			slog.String("error", err.Error()))
	}
}
