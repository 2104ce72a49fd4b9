// Package intersect implements the channel-ID intersector stage: the EPG
// pipeline's consumer of the numbered-channel snapshot. Programs pass
// through iff their channel id matches a surviving channel, by tvg_id first
// and channel name as fallback; passing programs are remapped to the
// channel's canonical EPG identifier so programme entries reference the
// channel elements written to the XMLTV output.
package intersect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "intersect_channels"
	// StageName is the human-readable name for this stage.
	StageName = "Channel-ID Intersector"
)

// Stage restricts the program stream to channels surviving the stream
// pipeline.
type Stage struct {
	shared.BaseStage
	logger *slog.Logger
}

// New creates a new intersector stage.
func New() *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
	}
}

// NewConstructor returns a stage constructor for use with the engine.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New()
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StageID)
		}
		return s
	}
}

// Execute builds the allowed-identifier sets from the numbered-channel
// snapshot and wraps the program iterator.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	snap, err := state.NumberedChannels()
	if err != nil {
		return result, err
	}

	// Two lookup tiers: direct tvg_id match first, channel name fallback.
	// Values are the canonical EPG identifier programmes are remapped to.
	byTvgID := make(map[string]string)
	byName := make(map[string]string)
	for _, ch := range snap.Items() {
		canonical := shared.EpgIdentifier(ch)
		if ch.TvgID != "" {
			key := strings.ToLower(ch.TvgID)
			if _, exists := byTvgID[key]; !exists {
				byTvgID[key] = canonical
			}
		}
		if ch.ChannelName != "" {
			key := strings.ToLower(ch.ChannelName)
			if _, exists := byName[key]; !exists {
				byName[key] = canonical
			}
		}
	}

	state.Programs = iterator.NewMappingIterator(state.Programs, func(ctx context.Context, prog *models.EpgProgram) (*models.EpgProgram, bool, error) {
		key := strings.ToLower(prog.ChannelID)

		canonical, ok := byTvgID[key]
		if !ok {
			canonical, ok = byName[key]
		}
		if !ok {
			state.Counters.DroppedUnmatched++
			return nil, false, nil
		}

		if prog.ChannelID != canonical {
			remapped := prog.Clone()
			remapped.ChannelID = canonical
			return remapped, true, nil
		}
		return prog, true, nil
	})

	s.log(ctx, slog.LevelInfo, "channel intersection configured",
		slog.Int("allowed_tvg_ids", len(byTvgID)),
		slog.Int("allowed_names", len(byName)))
	result.Message = fmt.Sprintf("Intersecting against %d surviving channels", snap.Len())
	return result, nil
}

// log logs a message if the logger is set.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// Ensure Stage implements core.Stage.
var _ core.Stage = (*Stage)(nil)
