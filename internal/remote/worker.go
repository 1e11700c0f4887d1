package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/voxpipe-ai/voxpipe/internal/bus"
	"github.com/voxpipe-ai/voxpipe/internal/config"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// Worker executes pipeline steps for remote callers. Each served step gets
// a queue subscription, so running several workers spreads the load.
type Worker struct {
	cfg    config.RemoteConfig
	bus    *bus.Client
	stages map[string]pipeline.Stage
	subs   []*nats.Subscription
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ready  bool
}

// NewWorker resolves every served step against the registry up front, so a
// node offering a step nothing registered fails at start-up instead of at
// first request.
func NewWorker(parent context.Context, cfg config.RemoteConfig, steps []string, registry *pipeline.Registry, busClient *bus.Client, log *slog.Logger) (*Worker, error) {
	stages := make(map[string]pipeline.Stage, len(steps))
	for _, step := range steps {
		factory, _, ok := registry.Resolve(step)
		if !ok {
			return nil, pipeline.NewError(pipeline.KindUnknownStep, "cannot serve unknown step %q", step)
		}
		stage, err := factory()
		if err != nil {
			return nil, fmt.Errorf("build served step %q: %w", step, err)
		}
		stages[step] = stage
	}

	ctx, cancel := context.WithCancel(parent)
	return &Worker{
		cfg:    cfg,
		bus:    busClient,
		stages: stages,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (w *Worker) Start() error {
	for step, stage := range w.stages {
		subject := Subject(w.cfg.SubjectPrefix, step)
		stage := stage
		sub, err := w.bus.Conn().QueueSubscribe(subject, QueueGroup, func(msg *nats.Msg) {
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.handle(stage, msg)
			}()
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		w.subs = append(w.subs, sub)
		w.log.Info("serving pipeline step", slog.String("subject", subject))
	}
	w.ready = true
	return nil
}

func (w *Worker) Close() {
	w.cancel()
	for _, sub := range w.subs {
		_ = sub.Drain()
	}
	w.wg.Wait()
}

func (w *Worker) Healthy() bool {
	return len(w.stages) == 0 || w.ready
}

// Steps returns the step names this worker serves.
func (w *Worker) Steps() []string {
	steps := make([]string, 0, len(w.stages))
	for step := range w.stages {
		steps = append(steps, step)
	}
	return steps
}

func (w *Worker) handle(stage pipeline.Stage, msg *nats.Msg) {
	var req request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		w.log.Warn("failed to decode step request", slog.String("error", err.Error()))
		w.reply(msg, response{Error: &wireError{
			Kind:    string(pipeline.KindInferenceFailed),
			Message: fmt.Sprintf("decode step request: %v", err),
		}})
		return
	}

	ctx := w.ctx
	if req.DeadlineUnixMS > 0 {
		deadline := time.UnixMilli(req.DeadlineUnixMS)
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(w.ctx, deadline)
		defer cancel()
	}

	ex := req.Exchange
	if err := stage.Run(ctx, &ex); err != nil {
		w.log.Warn("served step failed",
			slog.String("step", stage.Name()),
			slog.String("session_id", ex.SessionID),
			slog.String("error", err.Error()))
		w.reply(msg, response{Error: encodeError(pipeline.StepFailure(stage.Name(), stage.Capability(), err))})
		return
	}
	w.reply(msg, response{Exchange: &ex})
}

func (w *Worker) reply(msg *nats.Msg, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		w.log.Warn("failed to marshal step response", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(data); err != nil {
		w.log.Warn("failed to respond to step request", slog.String("error", err.Error()))
	}
}
