// Package loadprograms implements the EPG multi-source loading stage. EPG
// channel metadata merges with first-source-wins semantics per channel id;
// programs from every source remain candidates for the later deduplication
// tiers.
package loadprograms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/accumulator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "load_programs"
	// StageName is the human-readable name for this stage.
	StageName = "Load Programs"
	// DefaultEPGDays is the default number of days to load EPG data for.
	DefaultEPGDays = 7
)

// Stage builds the EPG channel snapshot and the program iterator chain.
type Stage struct {
	shared.BaseStage
	epgChannelRepo repository.EpgChannelRepository
	programRepo    repository.EpgProgramRepository
	logger         *slog.Logger
}

// New creates a new load programs stage.
func New(epgChannelRepo repository.EpgChannelRepository, programRepo repository.EpgProgramRepository) *Stage {
	return &Stage{
		BaseStage:      shared.NewBaseStage(StageID, StageName),
		epgChannelRepo: epgChannelRepo,
		programRepo:    programRepo,
	}
}

// NewConstructor returns a stage constructor for use with the engine.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.EpgChannelRepo, deps.EpgProgramRepo)
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StageID)
		}
		return s
	}
}

// Execute merges EPG channel metadata into a snapshot and installs the
// program iterator chain.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if len(state.Config.EpgSources) == 0 {
		s.log(ctx, slog.LevelInfo, "no EPG sources bound, emitting empty program set")
		state.Programs = iterator.FromSlice[*models.EpgProgram](nil)
		result.Message = "No EPG sources configured"
		return result, nil
	}

	epgDays := state.Pipeline.EPGDays
	if epgDays <= 0 {
		epgDays = DefaultEPGDays
	}
	now := time.Now().UTC()
	window := repository.TimeWindow{
		Start: now,
		End:   now.Add(time.Duration(epgDays) * 24 * time.Hour),
	}

	policy := core.RetryPolicy{
		Attempts:    state.Pipeline.RetryAttempts,
		BaseBackoff: state.Pipeline.RetryBackoff.Duration(),
	}
	timeout := state.Pipeline.UpstreamTimeout.Duration()

	// Merge channel metadata: first source emitting a channel id wins.
	if err := s.snapshotEpgChannels(ctx, state, policy, timeout); err != nil {
		return result, err
	}

	sources := make([]iterator.Iterator[*models.EpgProgram], 0, len(state.Config.EpgSources))
	for _, src := range state.Config.EpgSources {
		sources = append(sources, iterator.NewSourceIterator(src.ID, s.programPageFunc(policy, timeout, window)))
	}

	// Programs from every source stay in play until deduplication; only
	// channel metadata deduplicates at the load boundary.
	multi := iterator.NewMultiSourceIterator(sources, nil)

	validated := iterator.NewMappingIterator[*models.EpgProgram, *models.EpgProgram](multi, func(ctx context.Context, prog *models.EpgProgram) (*models.EpgProgram, bool, error) {
		if prog.Title == "" || prog.ChannelID == "" || !prog.Stop.After(prog.Start) {
			state.Counters.DroppedMalformed++
			state.AddError(&core.RecordError{Reason: "malformed", Err: fmt.Errorf("program %s missing required fields", prog.ID)})
			return nil, false, nil
		}
		return prog, true, nil
	})

	state.Programs = iterator.NewBuffered[*models.EpgProgram](ctx, validated, iterator.BridgeConfig{
		MaxConcurrentChunks: state.Pipeline.MaxConcurrentChunks,
		Governor:            state.Governor,
		Selector:            state.Selector,
	})

	s.log(ctx, slog.LevelInfo, "program loading configured",
		slog.Int("epg_source_count", len(state.Config.EpgSources)),
		slog.Int("epg_days", epgDays))
	result.Message = fmt.Sprintf("Loading programs from %d EPG sources", len(state.Config.EpgSources))
	return result, nil
}

// snapshotEpgChannels drains the merged EPG channel metadata into the
// registry snapshot.
func (s *Stage) snapshotEpgChannels(ctx context.Context, state *core.State, policy core.RetryPolicy, timeout time.Duration) error {
	sources := make([]iterator.Iterator[*models.EpgChannel], 0, len(state.Config.EpgSources))
	for _, src := range state.Config.EpgSources {
		sources = append(sources, iterator.NewSourceIterator(src.ID, s.channelPageFunc(policy, timeout)))
	}

	multi := iterator.NewMultiSourceIterator(sources, func(ch *models.EpgChannel) string {
		return strings.ToLower(ch.ChannelID)
	})
	defer multi.Close()

	level := memory.PressureOptimal
	if state.Governor != nil {
		level = state.Governor.Level()
	}

	acc, err := accumulator.New[*models.EpgChannel](accumulator.Options{
		Strategy:           state.Selector.AccumulatorFor(level, 0),
		Dir:                state.SandboxDir,
		Name:               "epg-channels",
		SpillThreshold:     state.Pipeline.SpillThreshold.Bytes(),
		RecordsPerFile:     state.Pipeline.SpillRecordsPerFile,
		EstimatedItemBytes: accumulator.EstimatedRuleBytes,
		Compress:           state.Pipeline.SpillCompression,
		Governor:           state.Governor,
	})
	if err != nil {
		return err
	}
	defer acc.Close()

	chunkSize := state.Selector.Respond(level).ChunkSize
	if err := iterator.Drain[*models.EpgChannel](ctx, multi, chunkSize, func(chunk []*models.EpgChannel) error {
		return acc.Append(chunk...)
	}); err != nil {
		return err
	}

	state.Counters.SpillEvents += acc.SpillEvents()

	snap, err := acc.IntoSnapshot("merged epg channels")
	if err != nil {
		return err
	}
	state.Registry.Register(core.SnapshotEpgChannels, snap)

	s.log(ctx, slog.LevelInfo, "EPG channel metadata merged",
		slog.Int("channel_count", snap.Len()),
		slog.Int("duplicates_discarded", multi.DroppedDuplicates()))
	return nil
}

// channelPageFunc wraps the EPG channel repository read with timeout and
// transient retry.
func (s *Stage) channelPageFunc(policy core.RetryPolicy, timeout time.Duration) iterator.PageFunc[*models.EpgChannel] {
	type page struct {
		items []*models.EpgChannel
		next  models.ULID
	}

	return func(ctx context.Context, sourceID models.ULID, after models.ULID, limit int) ([]*models.EpgChannel, models.ULID, error) {
		result, err := core.Retry(ctx, policy, func(ctx context.Context) (page, error) {
			callCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			items, next, err := s.epgChannelRepo.GetPage(callCtx, sourceID, after, limit)
			if err != nil {
				if ctx.Err() != nil {
					return page{}, ctx.Err()
				}
				return page{}, core.Transient(fmt.Errorf("reading epg channels from source %s: %w", sourceID, err))
			}
			return page{items: items, next: next}, nil
		})
		if err != nil {
			return nil, models.ULID{}, err
		}
		return result.items, result.next, nil
	}
}

// programPageFunc wraps the program repository read with timeout and
// transient retry.
func (s *Stage) programPageFunc(policy core.RetryPolicy, timeout time.Duration, window repository.TimeWindow) iterator.PageFunc[*models.EpgProgram] {
	type page struct {
		items []*models.EpgProgram
		next  models.ULID
	}

	return func(ctx context.Context, sourceID models.ULID, after models.ULID, limit int) ([]*models.EpgProgram, models.ULID, error) {
		result, err := core.Retry(ctx, policy, func(ctx context.Context) (page, error) {
			callCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			items, next, err := s.programRepo.GetPage(callCtx, sourceID, nil, window, after, limit)
			if err != nil {
				if ctx.Err() != nil {
					return page{}, ctx.Err()
				}
				return page{}, core.Transient(fmt.Errorf("reading programs from source %s: %w", sourceID, err))
			}
			return page{items: items, next: next}, nil
		})
		if err != nil {
			return nil, models.ULID{}, err
		}
		return result.items, result.next, nil
	}
}

// log logs a message if the logger is set.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// Ensure Stage implements core.Stage.
var _ core.Stage = (*Stage)(nil)
