package core

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/jmylchreest/m3u-proxy/internal/models"
)

// activeExecutions tracks which proxies have pipelines running.
var (
	activeExecutions   = make(map[models.ULID]bool)
	activeExecutionsMu sync.Mutex
)

// Orchestrator executes a sequence of pipeline stages against one state.
type Orchestrator struct {
	stages []Stage
	state  *State
	logger *slog.Logger
}

// NewOrchestrator creates a new Orchestrator with the given stages.
func NewOrchestrator(state *State, stages []Stage, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		stages: stages,
		state:  state,
		logger: logger,
	}
}

// Execute runs all stages in sequence.
// Returns a Result with execution details and any errors.
func (o *Orchestrator) Execute(ctx context.Context) (*Result, error) {
	result := &Result{
		StageResults: make(map[string]*StageResult),
	}

	// Prevent duplicate executions for the same proxy
	if !o.acquireExecution() {
		return result, ErrPipelineAlreadyRunning
	}
	defer o.releaseExecution()

	o.logger.InfoContext(ctx, "starting pipeline execution",
		slog.String("proxy_id", o.state.ProxyID.String()),
		slog.String("proxy_name", o.state.Proxy.Name),
		slog.Int("stage_count", len(o.stages)),
	)

	startTime := time.Now()

	for i, stage := range o.stages {
		select {
		case <-ctx.Done():
			result.Cancelled = IsCancellation(ctx.Err())
			result.Duration = time.Since(startTime)
			o.cleanupStages(o.stages[:i+1])
			return result, ctx.Err()
		default:
		}

		stageResult, err := o.executeStage(ctx, i, stage)
		result.StageResults[stage.ID()] = stageResult

		if err != nil {
			result.Cancelled = IsCancellation(err)
			result.Duration = time.Since(startTime)
			o.cleanupStages(o.stages[:i+1])
			return result, NewStageError(stage.ID(), stage.Name(), err)
		}

		// Encourage reclamation of chunk buffers between stages.
		runtime.GC()
	}

	o.cleanupStages(o.stages)

	result.Success = true
	result.M3U = o.state.M3U
	result.XMLTV = o.state.XMLTV
	result.ChannelCount = o.state.Counters.ChannelsEmitted
	result.ProgramCount = o.state.Counters.ProgramsEmitted
	result.Counters = o.state.Counters
	result.Duration = time.Since(startTime)
	result.Errors = o.state.Errors

	o.logger.InfoContext(ctx, "pipeline execution completed",
		slog.String("proxy_id", o.state.ProxyID.String()),
		slog.Int("channel_count", result.ChannelCount),
		slog.Int("program_count", result.ProgramCount),
		slog.Duration("duration", result.Duration),
		slog.Bool("success", result.Success),
	)

	return result, nil
}

// executeStage runs a single stage and handles logging.
func (o *Orchestrator) executeStage(ctx context.Context, index int, stage Stage) (*StageResult, error) {
	stageStart := time.Now()

	o.logger.InfoContext(ctx, "executing stage",
		slog.Int("stage_num", index+1),
		slog.Int("total_stages", len(o.stages)),
		slog.String("stage_id", stage.ID()),
		slog.String("stage_name", stage.Name()),
	)

	stageResult, err := stage.Execute(ctx, o.state)
	if stageResult == nil {
		stageResult = &StageResult{}
	}
	stageResult.Duration = time.Since(stageStart)

	if err != nil {
		o.logger.ErrorContext(ctx, "stage failed",
			slog.String("stage_id", stage.ID()),
			slog.String("stage_name", stage.Name()),
			slog.String("error", err.Error()),
			slog.Duration("duration", stageResult.Duration),
		)
		return stageResult, err
	}

	o.logger.InfoContext(ctx, "stage completed",
		slog.String("stage_id", stage.ID()),
		slog.String("stage_name", stage.Name()),
		slog.Duration("duration", stageResult.Duration),
		slog.Int("records_processed", stageResult.RecordsProcessed),
	)

	return stageResult, nil
}

// cleanupStages calls Cleanup on all given stages.
func (o *Orchestrator) cleanupStages(stages []Stage) {
	// Cleanup must run even when the run context is cancelled.
	ctx := context.Background()
	for _, stage := range stages {
		if err := stage.Cleanup(ctx); err != nil {
			o.logger.Warn("stage cleanup failed",
				slog.String("stage_id", stage.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// acquireExecution tries to acquire the execution lock for this proxy.
func (o *Orchestrator) acquireExecution() bool {
	activeExecutionsMu.Lock()
	defer activeExecutionsMu.Unlock()

	if activeExecutions[o.state.ProxyID] {
		return false
	}
	activeExecutions[o.state.ProxyID] = true
	return true
}

// releaseExecution releases the execution lock for this proxy.
func (o *Orchestrator) releaseExecution() {
	activeExecutionsMu.Lock()
	defer activeExecutionsMu.Unlock()
	delete(activeExecutions, o.state.ProxyID)
}

// State returns the current pipeline state (for testing).
func (o *Orchestrator) State() *State {
	return o.state
}

// Stages returns the configured stages (for testing).
func (o *Orchestrator) Stages() []Stage {
	return o.stages
}
