// Package loadchannels implements the source loading pipeline stage: a
// multi-source iterator over all stream sources bound to the proxy, in
// ascending priority order, with first-source-wins deduplication.
package loadchannels

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "load_channels"
	// StageName is the human-readable name for this stage.
	StageName = "Load Channels"
)

// Stage constructs the channel iterator chain over all configured sources.
type Stage struct {
	shared.BaseStage
	channelRepo repository.ChannelRepository
	logger      *slog.Logger

	multi *iterator.MultiSourceIterator[*models.Channel]
	state *core.State
}

// New creates a new load channels stage.
func New(channelRepo repository.ChannelRepository) *Stage {
	return &Stage{
		BaseStage:   shared.NewBaseStage(StageID, StageName),
		channelRepo: channelRepo,
	}
}

// NewConstructor returns a stage constructor for use with the engine.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.ChannelRepo)
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StageID)
		}
		return s
	}
}

// Execute builds the multi-source channel iterator and installs it as the
// head of the stream pipeline. No records are pulled here; downstream stages
// drive the chain.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()
	s.state = state

	if len(state.Config.Sources) == 0 {
		s.log(ctx, slog.LevelInfo, "no stream sources bound, emitting empty channel set")
		state.Channels = iterator.FromSlice[*models.Channel](nil)
		result.Message = "No stream sources configured"
		return result, nil
	}

	s.log(ctx, slog.LevelInfo, "building channel source iterators",
		slog.Int("source_count", len(state.Config.Sources)))

	policy := core.RetryPolicy{
		Attempts:    state.Pipeline.RetryAttempts,
		BaseBackoff: state.Pipeline.RetryBackoff.Duration(),
	}
	timeout := state.Pipeline.UpstreamTimeout.Duration()

	sources := make([]iterator.Iterator[*models.Channel], 0, len(state.Config.Sources))
	for _, src := range state.Config.Sources {
		sources = append(sources, iterator.NewSourceIterator(src.ID, s.pageFunc(policy, timeout)))
	}

	s.multi = iterator.NewMultiSourceIterator(sources, func(ch *models.Channel) string {
		return ch.DedupKey()
	})

	// Malformed rows (missing required fields) drop at the read boundary.
	validated := iterator.NewMappingIterator(s.multi, func(ctx context.Context, ch *models.Channel) (*models.Channel, bool, error) {
		if ch.ChannelName == "" || ch.StreamURL == "" {
			state.Counters.DroppedMalformed++
			state.AddError(&core.RecordError{Reason: "malformed", Err: fmt.Errorf("channel %s missing required fields", ch.ID)})
			return nil, false, nil
		}
		return ch, true, nil
	})

	state.Channels = iterator.NewBuffered[*models.Channel](ctx, validated, iterator.BridgeConfig{
		MaxConcurrentChunks: state.Pipeline.MaxConcurrentChunks,
		Governor:            state.Governor,
		Selector:            state.Selector,
	})

	result.Message = fmt.Sprintf("Loading channels from %d sources", len(state.Config.Sources))
	return result, nil
}

// pageFunc wraps the repository read with per-call timeout and transient
// retry.
func (s *Stage) pageFunc(policy core.RetryPolicy, timeout time.Duration) iterator.PageFunc[*models.Channel] {
	type page struct {
		items []*models.Channel
		next  models.ULID
	}

	return func(ctx context.Context, sourceID models.ULID, after models.ULID, limit int) ([]*models.Channel, models.ULID, error) {
		result, err := core.Retry(ctx, policy, func(ctx context.Context) (page, error) {
			callCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			items, next, err := s.channelRepo.GetPage(callCtx, sourceID, after, limit)
			if err != nil {
				if ctx.Err() != nil {
					return page{}, ctx.Err()
				}
				return page{}, core.Transient(fmt.Errorf("reading channels from source %s: %w", sourceID, err))
			}
			return page{items: items, next: next}, nil
		})
		if err != nil {
			return nil, models.ULID{}, err
		}
		return result.items, result.next, nil
	}
}

// Cleanup records the final first-source-wins dedup count. It does not close
// the iterator chain.
func (s *Stage) Cleanup(ctx context.Context) error {
	if s.multi != nil && s.state != nil {
		s.state.Counters.DroppedDuplicates = s.multi.DroppedDuplicates()
	}
	return nil
}

// log logs a message if the logger is set.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// Ensure Stage implements core.Stage.
var _ core.Stage = (*Stage)(nil)
