// Package remote runs pipeline steps on other nodes over NATS
// request/reply. The client side satisfies the same Stage contract as a
// local step; the worker side executes registered steps on behalf of
// remote callers.
package remote

import (
	"errors"

	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// QueueGroup is the queue group worker subscriptions join, so each
// request lands on exactly one worker.
const QueueGroup = "voxpipe-steps"

// Subject returns the request subject for a step.
func Subject(prefix, step string) string {
	return prefix + "." + step
}

// request is one step invocation on the wire. DeadlineUnixMS carries the
// caller's deadline so the worker stops work the caller no longer waits for.
type request struct {
	Exchange       pipeline.Exchange `json:"exchange"`
	DeadlineUnixMS int64             `json:"deadline_unix_ms,omitempty"`
}

type response struct {
	Exchange *pipeline.Exchange `json:"exchange,omitempty"`
	Error    *wireError         `json:"error,omitempty"`
}

type wireError struct {
	Kind       string `json:"kind"`
	Step       string `json:"step,omitempty"`
	Capability string `json:"capability,omitempty"`
	Message    string `json:"message"`
}

func encodeError(err error) *wireError {
	kind := pipeline.KindOf(err)
	if kind == "" {
		kind = pipeline.KindInferenceFailed
	}
	wire := &wireError{Kind: string(kind), Message: err.Error()}
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		wire.Step = perr.Step
		wire.Capability = string(perr.Capability)
	}
	return wire
}

func (e *wireError) toError() *pipeline.Error {
	return &pipeline.Error{
		Kind:       pipeline.ErrorKind(e.Kind),
		Step:       e.Step,
		Capability: pipeline.Capability(e.Capability),
		Message:    e.Message,
	}
}
