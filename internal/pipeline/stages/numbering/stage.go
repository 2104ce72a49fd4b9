// Package numbering implements the channel numbering pipeline stage.
//
// The stage drains the stream iterator chain into an accumulator (spilling to
// disk under pressure), assigns channel numbers, and freezes the result into
// the numbered-channel snapshot: the pipeline's single fan-out point, feeding
// both the M3U generator and the EPG channel-ID intersector.
//
// Numbering modes:
//   - sequential: strictly monotonically increasing numbers from the proxy's
//     starting number, in emission order, no gaps (the default)
//   - preserve: channels with explicit numbers keep them (conflicts resolve
//     upward); unnumbered channels fill in from the starting number
//   - group: each group gets its own range of groupSize numbers
package numbering

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/observability"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/accumulator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/snapshot"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "numbering"
	// StageName is the human-readable name for this stage.
	StageName = "Channel Numbering"
)

// ConflictResolution represents how a numbering conflict was resolved.
type ConflictResolution struct {
	ChannelName    string
	OriginalNumber int
	AssignedNumber int
}

// Stage assigns channel numbers and produces the numbered-channel snapshot.
type Stage struct {
	shared.BaseStage
	logger    *slog.Logger
	conflicts []ConflictResolution
}

// New creates a new numbering stage.
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

// GetConflicts returns the conflicts resolved during the last execution.
func (s *Stage) GetConflicts() []ConflictResolution {
	return s.conflicts
}

// Execute drains the channel chain, assigns numbers, and registers the
// numbered-channel snapshot.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()
	s.conflicts = nil

	level := memory.PressureOptimal
	if state.Governor != nil {
		level = state.Governor.Level()
	}
	strategy := state.Selector.AccumulatorFor(level, 0)

	acc, err := accumulator.New[*models.Channel](accumulator.Options{
		Strategy:           strategy,
		Dir:                state.SandboxDir,
		Name:               "channels",
		SpillThreshold:     state.Pipeline.SpillThreshold.Bytes(),
		RecordsPerFile:     state.Pipeline.SpillRecordsPerFile,
		EstimatedItemBytes: accumulator.EstimatedChannelBytes,
		Compress:           state.Pipeline.SpillCompression,
		Governor:           state.Governor,
	})
	if err != nil {
		return result, err
	}
	defer acc.Close()

	// The stage bridge upstream already adapts chunk sizes to pressure
	// transitions; the drain request size only caps the pull.
	chunkSize := state.Selector.Respond(level).ChunkSize
	err = iterator.Drain(ctx, state.Channels, chunkSize, func(chunk []*models.Channel) error {
		if appendErr := acc.Append(chunk...); appendErr != nil {
			return appendErr
		}
		observability.RecordsProcessed.WithLabelValues(StageID).Add(float64(len(chunk)))
		return nil
	})
	closeErr := state.Channels.Close()
	if err != nil {
		return result, err
	}
	if closeErr != nil {
		return result, closeErr
	}

	state.Counters.SpillEvents += acc.SpillEvents()

	snap, err := acc.IntoSnapshot("channels before numbering")
	if err != nil {
		return result, err
	}
	channels := append([]*models.Channel(nil), snap.Items()...)

	startingNumber := state.Proxy.StartingChannelNumber
	if startingNumber <= 0 {
		startingNumber = 1
	}

	mode := state.Proxy.NumberingMode
	if mode == "" {
		mode = models.NumberingModeSequential
	}
	groupSize := state.Proxy.GroupNumberingSize
	if groupSize <= 0 {
		groupSize = 100
	}

	var numberedCount int
	switch mode {
	case models.NumberingModePreserve:
		numberedCount = s.assignPreserving(channels, startingNumber)
	case models.NumberingModeGroup:
		numberedCount = s.assignByGroup(channels, startingNumber, groupSize)
	default:
		numberedCount = s.assignSequential(channels, startingNumber)
	}

	numbered := snapshot.New(channels, "final numbered channels")
	state.Registry.Register(core.SnapshotNumberedChannels, numbered)

	result.RecordsProcessed = len(channels)
	result.RecordsModified = numberedCount
	if len(s.conflicts) > 0 {
		result.Message = fmt.Sprintf("Numbered %d channels starting from %d (%d conflicts resolved)",
			numberedCount, startingNumber, len(s.conflicts))
	} else {
		result.Message = fmt.Sprintf("Numbered %d channels starting from %d", numberedCount, startingNumber)
	}

	s.log(ctx, slog.LevelInfo, "channel numbering complete",
		slog.Int("channels_numbered", numberedCount),
		slog.Int("starting_number", startingNumber),
		slog.String("mode", string(mode)),
		slog.Int("conflicts_resolved", len(s.conflicts)),
		slog.Bool("spilled", acc.Spilled()))

	return result, nil
}

// assignSequential assigns strictly increasing numbers in emission order.
func (s *Stage) assignSequential(channels []*models.Channel, startNum int) int {
	num := startNum
	for _, ch := range channels {
		ch.ChannelNumber = num
		num++
	}
	return len(channels)
}

// assignPreserving keeps existing channel numbers where valid, resolving
// conflicts upward; unnumbered channels fill in from startNum.
func (s *Stage) assignPreserving(channels []*models.Channel, startNum int) int {
	usedNumbers := make(map[int]bool)

	type channelAssignment struct {
		index       int
		resolvedNum *int // nil means needs sequential assignment
	}
	channelsNeedingNumbers := make([]channelAssignment, 0)

	// First pass: claim explicit numbers; conflicts increment to the next
	// available number.
	for i, ch := range channels {
		if ch.ChannelNumber > 0 {
			desiredNum := ch.ChannelNumber
			originalNum := desiredNum

			for usedNumbers[desiredNum] {
				desiredNum++
			}
			usedNumbers[desiredNum] = true

			if desiredNum != originalNum {
				if s.logger != nil {
					s.logger.Warn("channel number conflict resolved",
						"channel", ch.ChannelName,
						"original_number", originalNum,
						"assigned_number", desiredNum)
				}
				s.conflicts = append(s.conflicts, ConflictResolution{
					ChannelName:    ch.ChannelName,
					OriginalNumber: originalNum,
					AssignedNumber: desiredNum,
				})
				resolvedNum := desiredNum
				channelsNeedingNumbers = append(channelsNeedingNumbers, channelAssignment{
					index:       i,
					resolvedNum: &resolvedNum,
				})
			}
		} else {
			channelsNeedingNumbers = append(channelsNeedingNumbers, channelAssignment{
				index: i,
			})
		}
	}

	// Build the available number pool from startNum, skipping claimed
	// numbers.
	sequentialNeeded := 0
	for _, ca := range channelsNeedingNumbers {
		if ca.resolvedNum == nil {
			sequentialNeeded++
		}
	}
	availableNumbers := make([]int, 0, sequentialNeeded)
	num := startNum
	for len(availableNumbers) < sequentialNeeded {
		if !usedNumbers[num] {
			availableNumbers = append(availableNumbers, num)
		}
		num++
	}

	// Second pass: assign numbers to channels that need them.
	modified := 0
	availableIdx := 0
	for _, ca := range channelsNeedingNumbers {
		ch := channels[ca.index]
		if ca.resolvedNum != nil {
			ch.ChannelNumber = *ca.resolvedNum
			modified++
		} else if availableIdx < len(availableNumbers) {
			ch.ChannelNumber = availableNumbers[availableIdx]
			usedNumbers[ch.ChannelNumber] = true
			availableIdx++
			modified++
		}
	}

	return modified
}

// assignByGroup assigns channel numbers within group ranges.
func (s *Stage) assignByGroup(channels []*models.Channel, startNum int, groupSize int) int {
	groups := make(map[string][]*models.Channel)
	groupOrder := make([]string, 0)

	for _, ch := range channels {
		group := ch.GroupTitle
		if group == "" {
			group = "Uncategorized"
		}
		if _, exists := groups[group]; !exists {
			groupOrder = append(groupOrder, group)
		}
		groups[group] = append(groups[group], ch)
	}

	sort.Strings(groupOrder)

	modified := 0
	for i, groupName := range groupOrder {
		num := startNum + (i * groupSize)
		for _, ch := range groups[groupName] {
			ch.ChannelNumber = num
			num++
			modified++
		}
	}

	return modified
}

// log logs a message if the logger is set.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// Ensure Stage implements core.Stage.
var _ core.Stage = (*Stage)(nil)
