// Package timeshift implements the timeshift adjuster stage. For every
// channel whose tvg_shift is non-zero, program start and stop times shift by
// that many hours. The stage runs after deduplication so dedup keys reference
// un-shifted times; only the XMLTV output sees shifted times. The M3U output
// is unaffected.
package timeshift

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "timeshift"
	// StageName is the human-readable name for this stage.
	StageName = "Timeshift Adjuster"
)

// Stage shifts program times for timeshifted channels.
type Stage struct {
	shared.BaseStage
	logger *slog.Logger
}

// New creates a new timeshift stage.
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

// Execute builds the per-channel shift table from the numbered-channel
// snapshot and wraps the program iterator.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	snap, err := state.NumberedChannels()
	if err != nil {
		return result, err
	}

	// Shift per canonical EPG identifier; the intersector has already
	// remapped program channel ids to these identifiers.
	shifts := make(map[string]int)
	for _, ch := range snap.Items() {
		if ch.TvgShift == 0 {
			continue
		}
		key := strings.ToLower(shared.EpgIdentifier(ch))
		if _, exists := shifts[key]; !exists {
			shifts[key] = ch.TvgShift
		}
	}

	if len(shifts) == 0 {
		s.log(ctx, slog.LevelDebug, "no timeshifted channels")
		result.Message = "No timeshifted channels"
		return result, nil
	}

	state.Programs = iterator.NewMappingIterator(state.Programs, func(ctx context.Context, prog *models.EpgProgram) (*models.EpgProgram, bool, error) {
		shift, ok := shifts[strings.ToLower(prog.ChannelID)]
		if !ok {
			return prog, true, nil
		}

		shifted := prog.Clone()
		offset := time.Duration(shift) * time.Hour
		shifted.Start = prog.Start.Add(offset)
		shifted.Stop = prog.Stop.Add(offset)
		state.Counters.TimeshiftedPrograms++
		return shifted, true, nil
	})

	s.log(ctx, slog.LevelInfo, "timeshift configured",
		slog.Int("shifted_channels", len(shifts)))
	result.Message = fmt.Sprintf("Shifting programs for %d channels", len(shifts))
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
