package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// retryBudget is fixed per capability. Transforms and transcription are
// cheap or idempotent enough to retry once; alignment requests carry the
// full transcript and are not retried.
func retryBudget(capability pipeline.Capability) int {
	switch capability {
	case pipeline.CapabilityTransform, pipeline.CapabilityTranscription:
		return 1
	default:
		return 0
	}
}

// StageClient invokes a step on a remote worker. It satisfies the same
// Stage contract as a local step, so the compiled chain treats both alike.
type StageClient struct {
	name       string
	capability pipeline.Capability
	conn       *nats.Conn
	subject    string
	timeout    time.Duration
	log        *slog.Logger
}

func NewStageClient(conn *nats.Conn, subjectPrefix, name string, capability pipeline.Capability, timeout time.Duration, log *slog.Logger) *StageClient {
	return &StageClient{
		name:       name,
		capability: capability,
		conn:       conn,
		subject:    Subject(subjectPrefix, name),
		timeout:    timeout,
		log:        log,
	}
}

func (c *StageClient) Name() string                    { return c.name }
func (c *StageClient) Capability() pipeline.Capability { return c.capability }

func (c *StageClient) Run(ctx context.Context, ex *pipeline.Exchange) error {
	attempts := 1 + retryBudget(c.capability)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = c.invoke(ctx, ex)
		if lastErr == nil {
			return nil
		}
		if !pipeline.Retryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
		if attempt+1 < attempts {
			c.log.Warn("remote step failed, retrying",
				slog.String("step", c.name),
				slog.String("error", lastErr.Error()))
		}
	}
	return lastErr
}

func (c *StageClient) invoke(ctx context.Context, ex *pipeline.Exchange) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := request{Exchange: *ex}
	if deadline, ok := callCtx.Deadline(); ok {
		req.DeadlineUnixMS = deadline.UnixMilli()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return pipeline.WrapError(pipeline.KindInferenceFailed, fmt.Errorf("encode request: %w", err))
	}

	msg, err := c.conn.RequestWithContext(callCtx, c.subject, payload)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			return ctx.Err()
		case errors.Is(err, nats.ErrNoResponders):
			return pipeline.WrapError(pipeline.KindBackendUnavailable,
				fmt.Errorf("no worker serves %s: %w", c.subject, err))
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
			return pipeline.WrapError(pipeline.KindUpstreamTimeout,
				fmt.Errorf("remote step %s timed out after %s: %w", c.name, c.timeout, err))
		default:
			return pipeline.WrapError(pipeline.KindBackendUnavailable, err)
		}
	}

	var resp response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return pipeline.WrapError(pipeline.KindInferenceFailed, fmt.Errorf("decode response: %w", err))
	}
	if resp.Error != nil {
		return resp.Error.toError()
	}
	if resp.Exchange == nil {
		return pipeline.NewError(pipeline.KindInferenceFailed, "remote step %s returned an empty response", c.name)
	}
	*ex = *resp.Exchange
	return nil
}
