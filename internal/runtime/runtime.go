// Package runtime assembles a node from its configuration: telemetry,
// bus, cluster membership, the step registry, the compiled pipeline, an
// optional step worker, and the HTTP surface.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxpipe-ai/voxpipe/internal/bus"
	"github.com/voxpipe-ai/voxpipe/internal/cluster"
	"github.com/voxpipe-ai/voxpipe/internal/config"
	"github.com/voxpipe-ai/voxpipe/internal/natsserver"
	"github.com/voxpipe-ai/voxpipe/internal/orchestrate"
	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
	"github.com/voxpipe-ai/voxpipe/internal/plugins"
	"github.com/voxpipe-ai/voxpipe/internal/remote"
	"github.com/voxpipe-ai/voxpipe/internal/server"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the node up and blocks until ctx is cancelled. Pipeline
// compilation happens before any listener opens, so a mis-wired chain
// aborts start-up instead of failing requests.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	defer busClient.Close()

	clusterRegistry, err := cluster.NewRegistry(ctx, r.cfg.Node, r.cfg.Serve.Steps, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("join cluster: %w", err)
	}
	defer clusterRegistry.Close()

	stepRegistry, err := plugins.BuildRegistry(r.cfg.Pipeline, r.logger)
	if err != nil {
		return fmt.Errorf("build step registry: %w", err)
	}

	var worker *remote.Worker
	if len(r.cfg.Serve.Steps) > 0 {
		worker, err = remote.NewWorker(ctx, r.cfg.Remote, r.cfg.Serve.Steps, stepRegistry, busClient, r.logger)
		if err != nil {
			return fmt.Errorf("build step worker: %w", err)
		}
		if err := worker.Start(); err != nil {
			return fmt.Errorf("start step worker: %w", err)
		}
		defer worker.Close()
	}

	remoteTimeout := time.Duration(r.cfg.Remote.RequestTimeout) * time.Millisecond
	compiled, err := pipeline.Compile(r.cfg.Pipeline.Selected, plugins.Definitions(r.cfg.Pipeline), stepRegistry,
		pipeline.CompileOptions{
			Disabled: func(step string) bool { return !r.cfg.Pipeline.StepEnabled(step) },
			Remote:   r.cfg.Pipeline.StepRemote,
			RemoteStage: func(step string, capability pipeline.Capability) (pipeline.Stage, error) {
				return remote.NewStageClient(busClient.Conn(), r.cfg.Remote.SubjectPrefix, step,
					capability, remoteTimeout, r.logger), nil
			},
		})
	if err != nil {
		return fmt.Errorf("compile pipeline: %w", err)
	}
	for _, step := range compiled.Steps() {
		r.logger.Info("pipeline step resolved",
			slog.String("pipeline", compiled.Name),
			slog.String("step", step.Name),
			slog.String("capability", string(step.Capability)),
			slog.Bool("remote", step.Remote),
			slog.Bool("placeholder", stepRegistry.IsPlaceholder(step.Name)))
	}

	engine := pipeline.NewEngine(compiled, r.logger)
	orchestrator := orchestrate.New(engine, r.logger)

	ready := func() bool {
		if !r.ready.Load() || !busClient.Healthy() {
			return false
		}
		if worker != nil && !worker.Healthy() {
			return false
		}
		return true
	}
	api := server.New(orchestrator, stepRegistry, ready, metricsHandler, r.logger)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("node", r.cfg.Node.ID),
		slog.String("role", r.cfg.Node.Role))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}
