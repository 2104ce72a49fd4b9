// Package generatexmltv implements the XMLTV generation pipeline stage. It
// drains the final program iterator into a snapshot (spilling under
// pressure), sorts programmes by channel and start time, and renders the
// document: one channel element per numbered channel, then the programmes.
package generatexmltv

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/observability"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/accumulator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
	"github.com/jmylchreest/m3u-proxy/pkg/xmltv"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "generate_xmltv"
	// StageName is the human-readable name for this stage.
	StageName = "Generate XMLTV"
)

// Stage generates the XMLTV document.
type Stage struct {
	shared.BaseStage
	logger *slog.Logger
}

// New creates a new XMLTV generation stage.
func New() *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
	}
}

// NewConstructor returns a stage constructor for use with the engine.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New()
		if deps != nil && deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StageID)
		}
		return s
	}
}

// Execute renders the EPG document into state.XMLTV.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	channelSnap, err := state.NumberedChannels()
	if err != nil {
		return result, err
	}

	programs, err := s.drainPrograms(ctx, state)
	if err != nil {
		return result, err
	}

	// Sort programmes by channel then start time for stable output.
	sort.SliceStable(programs, func(i, j int) bool {
		if programs[i].ChannelID != programs[j].ChannelID {
			return programs[i].ChannelID < programs[j].ChannelID
		}
		return programs[i].Start.Before(programs[j].Start)
	})

	var sb strings.Builder
	writer := xmltv.NewWriter(&sb)

	if err := writer.WriteHeader(); err != nil {
		return result, fmt.Errorf("%w: %v", core.ErrOutputEncoding, err)
	}

	// One channel element per numbered channel: the channel count in the
	// XMLTV always equals the entry count in the M3U.
	epgIcons := s.epgIconIndex(state)
	for _, ch := range channelSnap.Items() {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		xmlCh := shared.ChannelToXMLTVChannel(ch)
		if xmlCh.Icon == "" {
			xmlCh.Icon = epgIcons[strings.ToLower(xmlCh.ID)]
		}
		if err := writer.WriteChannel(xmlCh); err != nil {
			return result, fmt.Errorf("%w: %v", core.ErrOutputEncoding, err)
		}
	}

	programCount := 0
	for _, prog := range programs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := writer.WriteProgramme(shared.ProgramToXMLTVProgramme(prog)); err != nil {
			return result, fmt.Errorf("%w: %v", core.ErrOutputEncoding, err)
		}
		programCount++
	}

	if err := writer.WriteFooter(); err != nil {
		return result, fmt.Errorf("%w: %v", core.ErrOutputEncoding, err)
	}

	state.XMLTV = sb.String()
	state.Counters.ProgramsEmitted = programCount
	observability.RecordsProcessed.WithLabelValues(StageID).Add(float64(programCount))

	result.RecordsProcessed = programCount
	result.Message = fmt.Sprintf("Generated XMLTV with %d channels and %d programs",
		channelSnap.Len(), programCount)

	s.log(ctx, slog.LevelInfo, "XMLTV generation complete",
		slog.Int("channel_count", channelSnap.Len()),
		slog.Int("program_count", programCount),
		slog.Int("output_bytes", len(state.XMLTV)))

	return result, nil
}

// drainPrograms collects the final program stream into a snapshot and
// returns its items. The snapshot is registered for observability and tests.
func (s *Stage) drainPrograms(ctx context.Context, state *core.State) ([]*models.EpgProgram, error) {
	level := memory.PressureOptimal
	if state.Governor != nil {
		level = state.Governor.Level()
	}

	acc, err := accumulator.New[*models.EpgProgram](accumulator.Options{
		Strategy:           state.Selector.AccumulatorFor(level, 0),
		Dir:                state.SandboxDir,
		Name:               "programs",
		SpillThreshold:     state.Pipeline.SpillThreshold.Bytes(),
		RecordsPerFile:     state.Pipeline.SpillRecordsPerFile,
		EstimatedItemBytes: accumulator.EstimatedProgramBytes,
		Compress:           state.Pipeline.SpillCompression,
		Governor:           state.Governor,
	})
	if err != nil {
		return nil, err
	}
	defer acc.Close()

	chunkSize := state.Selector.Respond(level).ChunkSize
	err = iterator.Drain(ctx, state.Programs, chunkSize, func(chunk []*models.EpgProgram) error {
		return acc.Append(chunk...)
	})
	closeErr := state.Programs.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}

	state.Counters.SpillEvents += acc.SpillEvents()

	snap, err := acc.IntoSnapshot("final deduplicated programs")
	if err != nil {
		return nil, err
	}
	state.Registry.Register(core.SnapshotFinalPrograms, snap)

	return append([]*models.EpgProgram(nil), snap.Items()...), nil
}

// epgIconIndex maps lower-cased EPG channel ids to icons from the merged EPG
// channel metadata snapshot, used when a channel has no logo of its own.
func (s *Stage) epgIconIndex(state *core.State) map[string]string {
	icons := make(map[string]string)
	snap, err := core.EpgChannelSnapshot(state)
	if err != nil {
		return icons
	}
	for _, ch := range snap.Items() {
		if ch.Icon == "" {
			continue
		}
		key := strings.ToLower(ch.ChannelID)
		if _, exists := icons[key]; !exists {
			icons[key] = ch.Icon
		}
	}
	return icons
}

// log logs a message if the logger is set.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// Ensure Stage implements core.Stage.
var _ core.Stage = (*Stage)(nil)
