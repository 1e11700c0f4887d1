package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind tags every pipeline failure with its place in the taxonomy.
// The first three are start-up errors: the service refuses to start rather
// than serve a mis-wired chain. The middle two are reported to the caller
// as client errors. The last three are execution errors.
type ErrorKind string

const (
	KindUnknownPipeline          ErrorKind = "unknown_pipeline"
	KindUnknownStep              ErrorKind = "unknown_step"
	KindMissingTranscriptionStep ErrorKind = "missing_transcription_step"
	KindInvalidAudio             ErrorKind = "invalid_audio"
	KindUnsupportedSampleRate    ErrorKind = "unsupported_sample_rate"
	KindBackendUnavailable       ErrorKind = "backend_unavailable"
	KindInferenceFailed          ErrorKind = "inference_failed"
	KindUpstreamTimeout          ErrorKind = "upstream_timeout"
)

// Error is a step failure tagged with the failing step's name and
// capability. Step and Capability are empty for start-up and request
// validation errors that are not attributable to a single step.
type Error struct {
	Kind       ErrorKind
	Step       string
	Capability Capability
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Step != "" {
		return fmt.Sprintf("%s: step %q (%s): %s", e.Kind, e.Step, e.Capability, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// StepFailure attributes err to a step. An existing *Error keeps its kind
// and message; anything else becomes an inference failure.
func StepFailure(step string, capability Capability, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		tagged := *perr
		if tagged.Step == "" {
			tagged.Step = step
		}
		if tagged.Capability == "" {
			tagged.Capability = capability
		}
		return &tagged
	}
	return &Error{Kind: KindInferenceFailed, Step: step, Capability: capability, Err: err}
}

// KindOf extracts the taxonomy kind from err, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// Retryable reports whether a remote invocation failing with err may be
// retried. Inference failures signal the backend ran and rejected the
// input, so they are never retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindBackendUnavailable, KindUpstreamTimeout:
		return true
	default:
		return false
	}
}
