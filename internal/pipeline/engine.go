// Package pipeline provides the proxy generation engine: it wires the stream
// and EPG stage sequences around a shared state, memory governor, and
// per-generation spill sandbox, and exposes the generation entry points.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/observability"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/snapshot"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/datamapping"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/dedupprograms"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/filtering"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/generatem3u"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/generatexmltv"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/intersect"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/loadchannels"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/loadprograms"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/logocaching"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/numbering"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/stages/timeshift"
)

// Engine executes proxy generations. One engine serves all proxies; each
// generation run owns its own state, registry, and spill sandbox. Multiple
// runs for different proxies may execute concurrently.
type Engine struct {
	deps   *core.Dependencies
	logger *slog.Logger
}

// NewEngine creates a generation engine with the given dependencies.
func NewEngine(deps *core.Dependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		deps:   deps,
		logger: observability.WithComponent(logger, "pipeline"),
	}
}

// streamConstructors is the stream pipeline stage sequence.
func streamConstructors() []core.StageConstructor {
	return []core.StageConstructor{
		loadchannels.NewConstructor(),
		datamapping.NewStreamConstructor(),
		filtering.NewStreamConstructor(),
		numbering.NewConstructor(),
		logocaching.NewConstructor(),
		generatem3u.NewConstructor(),
	}
}

// epgConstructors is the EPG pipeline stage sequence.
func epgConstructors() []core.StageConstructor {
	return []core.StageConstructor{
		loadprograms.NewConstructor(),
		datamapping.NewEpgConstructor(),
		filtering.NewEpgConstructor(),
		intersect.NewConstructor(),
		dedupprograms.NewConstructor(),
		timeshift.NewConstructor(),
		generatexmltv.NewConstructor(),
	}
}

// Generate produces the M3U playlist and XMLTV document for a proxy.
// On fatal error no partial output is returned; record-local failures
// accumulate into the result's counters.
func (e *Engine) Generate(ctx context.Context, proxyID models.ULID) (*core.Result, error) {
	constructors := append(streamConstructors(), epgConstructors()...)
	return e.run(ctx, proxyID, constructors, nil)
}

// GenerateM3U produces only the M3U playlist for a proxy.
func (e *Engine) GenerateM3U(ctx context.Context, proxyID models.ULID) (string, error) {
	result, err := e.run(ctx, proxyID, streamConstructors(), nil)
	if err != nil {
		return "", err
	}
	return result.M3U, nil
}

// GenerateXMLTV produces only the XMLTV document for a proxy, using an
// existing numbered-channel snapshot from a prior stream generation.
func (e *Engine) GenerateXMLTV(ctx context.Context, proxyID models.ULID, numbered *snapshot.Snapshot[*models.Channel]) (string, error) {
	if numbered == nil {
		return "", fmt.Errorf("numbered-channel snapshot is required")
	}
	result, err := e.run(ctx, proxyID, epgConstructors(), numbered)
	if err != nil {
		return "", err
	}
	return result.XMLTV, nil
}

// run executes one generation with the given stage sequence.
func (e *Engine) run(ctx context.Context, proxyID models.ULID, constructors []core.StageConstructor, numbered *snapshot.Snapshot[*models.Channel]) (*core.Result, error) {
	start := time.Now()

	cfg, err := e.deps.ProxyRepo.LoadConfig(ctx, proxyID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, core.ErrProxyNotFound
	}
	if !cfg.Proxy.IsActive {
		return nil, core.ErrProxyInactive
	}

	logger := observability.WithGeneration(e.logger, uuid.NewString())

	state := core.NewState(cfg.Proxy)
	state.Config = cfg
	state.Pipeline = e.deps.Config
	state.Governor = e.deps.Governor
	state.Selector = memory.NewSelector(
		e.deps.Config.ChunkSize,
		e.deps.Config.MaxChunkSize,
		e.deps.Config.MinChunkSize,
		e.deps.Config.BufferDepth,
	)
	state.BaseURL = cfg.Proxy.BaseURL
	if state.BaseURL == "" {
		state.BaseURL = e.deps.BaseURL
	}
	if numbered != nil {
		state.Registry.Register(core.SnapshotNumberedChannels, numbered)
	}

	// Per-generation spill sandbox, removed on success and failure alike.
	sandboxRel := filepath.Join("temp", fmt.Sprintf("gen-%s", uuid.NewString()))
	if err := e.deps.Sandbox.MkdirAll(sandboxRel); err != nil {
		return nil, fmt.Errorf("creating generation sandbox: %w", err)
	}
	sandboxDir, err := e.deps.Sandbox.ResolvePath(sandboxRel)
	if err != nil {
		return nil, err
	}
	state.SandboxDir = sandboxDir
	defer func() {
		if err := e.deps.Sandbox.RemoveAll(sandboxRel); err != nil {
			logger.Warn("failed to remove generation sandbox",
				slog.String("path", sandboxDir),
				slog.String("error", err.Error()))
		}
	}()

	runCtx := ctx
	if deadline := e.deps.Config.GenerationDeadline.Duration(); deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	e.markGenerating(ctx, cfg.Proxy)

	stages := core.BuildStages(e.deps, constructors)
	orchestrator := core.NewOrchestrator(state, stages, logger)

	result, execErr := orchestrator.Execute(runCtx)
	observability.GenerationDuration.Observe(time.Since(start).Seconds())

	if execErr != nil {
		outcome := "failed"
		if result != nil && result.Cancelled {
			outcome = "cancelled"
		} else if core.IsDeadline(execErr) {
			outcome = "timeout"
		}
		observability.GenerationsTotal.WithLabelValues(outcome).Inc()
		e.markFailed(ctx, cfg.Proxy, execErr)
		return result, execErr
	}

	observability.GenerationsTotal.WithLabelValues("success").Inc()
	e.markSuccess(ctx, cfg.Proxy, result)
	return result, nil
}

// markGenerating records generation start on the proxy row; best-effort.
func (e *Engine) markGenerating(ctx context.Context, proxy *models.StreamProxy) {
	proxy.MarkGenerating()
	if err := e.deps.ProxyRepo.Update(ctx, proxy); err != nil {
		e.logger.Warn("failed to update proxy status", slog.String("error", err.Error()))
	}
}

// markSuccess records a successful generation on the proxy row; best-effort.
func (e *Engine) markSuccess(ctx context.Context, proxy *models.StreamProxy, result *core.Result) {
	proxy.MarkSuccess(result.ChannelCount, result.ProgramCount)
	if err := e.deps.ProxyRepo.Update(ctx, proxy); err != nil {
		e.logger.Warn("failed to update proxy status", slog.String("error", err.Error()))
	}
}

// markFailed records a failed generation on the proxy row; best-effort.
// Cancellation is not recorded as a failure.
func (e *Engine) markFailed(ctx context.Context, proxy *models.StreamProxy, execErr error) {
	if core.IsCancellation(execErr) {
		return
	}
	proxy.MarkFailed(execErr)
	if err := e.deps.ProxyRepo.Update(context.WithoutCancel(ctx), proxy); err != nil {
		e.logger.Warn("failed to update proxy status", slog.String("error", err.Error()))
	}
}
