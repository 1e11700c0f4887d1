// Package pipeline holds the composition core: the data model threaded
// through a chain of processing steps, the Stage contract every step
// satisfies, the plugin registry, the compiler that turns a declarative
// definition into an executable chain, and the engine that runs it.
package pipeline

import (
	"context"
	"strings"
)

// Capability classifies what role a step plays in the chain.
type Capability string

const (
	CapabilityTransform     Capability = "transform"
	CapabilityTranscription Capability = "transcription"
	CapabilityAlignment     Capability = "alignment"
)

// AudioBuffer is a mono float PCM buffer. It is owned by exactly one
// in-flight exchange; stages mutate it in place.
type AudioBuffer struct {
	SampleRateHz int       `json:"sample_rate_hz"`
	Samples      []float32 `json:"samples"`
}

func (b AudioBuffer) Empty() bool {
	return len(b.Samples) == 0
}

type TranscriptToken struct {
	Text       string  `json:"text"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Confidence float32 `json:"confidence"`
}

type TranscriptSegment struct {
	Text    string            `json:"text"`
	StartMS int64             `json:"start_ms"`
	EndMS   int64             `json:"end_ms"`
	Tokens  []TranscriptToken `json:"tokens,omitempty"`
}

type Transcript struct {
	Language string              `json:"language"`
	Segments []TranscriptSegment `json:"segments"`
}

// FlatText joins the trimmed segment texts into a single line.
func (t Transcript) FlatText() string {
	parts := make([]string, 0, len(t.Segments))
	for _, segment := range t.Segments {
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// AlignedWord is one word with timing, produced by an alignment step.
// Words are ordered by start time; non-overlap is the aligner's contract.
type AlignedWord struct {
	Word       string  `json:"word"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Confidence float32 `json:"confidence"`
}

// Exchange is the per-request state threaded through the chain. The session
// id is caller-supplied and never rewritten by any stage; pre-steps mutate
// only Audio, the transcription step fills Transcript, post-steps may append
// AlignedWords.
type Exchange struct {
	SessionID    string        `json:"session_id"`
	LanguageHint string        `json:"language_hint,omitempty"`
	Audio        AudioBuffer   `json:"audio"`
	Transcript   *Transcript   `json:"transcript,omitempty"`
	AlignedWords []AlignedWord `json:"aligned_words,omitempty"`
}

// Result is the aggregated outcome returned to the caller. It is built once
// per request and not retained by the engine.
type Result struct {
	SessionID    string        `json:"session_id"`
	Transcript   Transcript    `json:"transcript"`
	AlignedWords []AlignedWord `json:"aligned_words"`
	Text         string        `json:"text"`
}

// Stage is the uniform contract wrapping one pipeline step, local or remote.
// Implementations must be safe for concurrent use: one Stage instance is
// shared by every in-flight request.
type Stage interface {
	Name() string
	Capability() Capability
	Run(ctx context.Context, ex *Exchange) error
}
