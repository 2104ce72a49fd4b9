// Package core provides the pipeline orchestration framework for proxy
// generation: the stage contract, shared state, the generation engine, and
// the error/retry model.
package core

import (
	"context"
	"time"

	"github.com/jmylchreest/m3u-proxy/internal/config"
	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/snapshot"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
)

// Snapshot registry keys.
const (
	// SnapshotNumberedChannels is the final numbered-channel snapshot: the
	// pipeline's single fan-out point, feeding both the M3U generator and
	// the EPG channel-ID intersector.
	SnapshotNumberedChannels = "channels.numbered"

	// SnapshotEpgChannels is the merged EPG channel metadata snapshot.
	SnapshotEpgChannels = "epg.channels"

	// SnapshotFinalPrograms is the deduplicated, timeshifted program snapshot.
	SnapshotFinalPrograms = "programs.final"
)

// Stage represents a single step in the proxy generation pipeline.
// Stages either wrap the state's current iterator with a transform or drain
// it into a snapshot at a coordination point.
type Stage interface {
	// ID returns a unique identifier for the stage (e.g., "load_channels").
	ID() string

	// Name returns a human-readable name for the stage (e.g., "Load Channels").
	Name() string

	// Execute performs the stage's work against the shared state.
	Execute(ctx context.Context, state *State) (*StageResult, error)

	// Cleanup performs any necessary cleanup after execution.
	// Called regardless of success or failure.
	Cleanup(ctx context.Context) error
}

// Counters collects the diagnostic counters reported with every generation.
// Record-local errors never fail a generation; they accumulate here.
type Counters struct {
	// ChannelsEmitted is the number of channels in the final M3U.
	ChannelsEmitted int

	// ProgramsEmitted is the number of programmes in the final XMLTV.
	ProgramsEmitted int

	// DroppedDuplicates counts channels suppressed by first-source-wins dedup.
	DroppedDuplicates int

	// DroppedByFilter counts records dropped by filters (stream and EPG).
	DroppedByFilter int

	// DroppedUnmatched counts programs whose channel id matched no
	// surviving channel at the intersector.
	DroppedUnmatched int

	// DroppedByRule counts records dropped by mapping-rule REMOVE actions.
	DroppedByRule int

	// DroppedMalformed counts records dropped for missing required fields.
	DroppedMalformed int

	// DedupExact, DedupNear, and DedupSimilar count program dedup collapses
	// per tier.
	DedupExact   int
	DedupNear    int
	DedupSimilar int

	// MappingErrors counts rules that failed to apply; the affected records
	// passed through unchanged.
	MappingErrors int

	// LogoFailures counts best-effort logo cache misses.
	LogoFailures int

	// SpillEvents counts accumulator spill-to-disk events.
	SpillEvents int

	// TimeshiftedPrograms counts programmes whose times were shifted.
	TimeshiftedPrograms int
}

// State holds all data shared between pipeline stages for one generation run.
type State struct {
	// ProxyID is the ID of the StreamProxy being generated.
	ProxyID models.ULID

	// Proxy is the full proxy configuration row.
	Proxy *models.StreamProxy

	// Config is the resolved proxy configuration: ordered sources, filters,
	// and mapping rules.
	Config *repository.ProxyConfig

	// BaseURL is the base URL for proxied stream and logo URLs.
	BaseURL string

	// Pipeline is the pipeline tuning configuration.
	Pipeline config.PipelineConfig

	// SandboxDir is the per-generation spill directory (absolute path).
	// Created at generation start, removed at generation end.
	SandboxDir string

	// Registry holds this generation's snapshots.
	Registry *snapshot.Registry

	// Governor is the process-wide memory governor.
	Governor *memory.Governor

	// Selector maps pressure levels to resource responses.
	Selector *memory.Selector

	// Channels is the head of the stream pipeline's iterator chain.
	// Stages replace it as they wrap transforms around it.
	Channels iterator.Iterator[*models.Channel]

	// Programs is the head of the EPG pipeline's iterator chain.
	Programs iterator.Iterator[*models.EpgProgram]

	// M3U receives the final playlist text.
	M3U string

	// XMLTV receives the final EPG document text.
	XMLTV string

	// Counters accumulates diagnostic counters across stages.
	Counters Counters

	// StartTime records when pipeline execution began.
	StartTime time.Time

	// Errors collects non-fatal errors during execution.
	Errors []error
}

// NewState creates a new pipeline state for the given proxy.
func NewState(proxy *models.StreamProxy) *State {
	return &State{
		ProxyID:   proxy.ID,
		Proxy:     proxy,
		Registry:  snapshot.NewRegistry(),
		StartTime: time.Now(),
	}
}

// AddError adds a non-fatal error to the state.
func (s *State) AddError(err error) {
	if err != nil {
		s.Errors = append(s.Errors, err)
	}
}

// HasErrors returns true if any non-fatal errors were recorded.
func (s *State) HasErrors() bool {
	return len(s.Errors) > 0
}

// Duration returns the elapsed time since pipeline start.
func (s *State) Duration() time.Duration {
	return time.Since(s.StartTime)
}

// NumberedChannels returns the numbered-channel snapshot from the registry.
func (s *State) NumberedChannels() (*snapshot.Snapshot[*models.Channel], error) {
	return snapshot.Get[*models.Channel](s.Registry, SnapshotNumberedChannels)
}

// EpgChannelSnapshot returns the merged EPG channel metadata snapshot from
// the state's registry.
func EpgChannelSnapshot(s *State) (*snapshot.Snapshot[*models.EpgChannel], error) {
	return snapshot.Get[*models.EpgChannel](s.Registry, SnapshotEpgChannels)
}

// StageResult contains the outcome of a stage execution.
type StageResult struct {
	// RecordsProcessed is the count of items processed.
	RecordsProcessed int

	// RecordsModified is the count of items changed.
	RecordsModified int

	// Duration is the execution time.
	Duration time.Duration

	// Message is an optional summary message.
	Message string
}

// Result represents the outcome of a generation run.
type Result struct {
	// Success indicates if the pipeline completed without fatal errors.
	Success bool

	// Cancelled indicates the run was cancelled rather than failed.
	Cancelled bool

	// M3U is the generated playlist text.
	M3U string

	// XMLTV is the generated EPG document text.
	XMLTV string

	// ChannelCount is the number of channels in the generated output.
	ChannelCount int

	// ProgramCount is the number of EPG programs in the generated output.
	ProgramCount int

	// Counters holds the diagnostic counters.
	Counters Counters

	// Duration is the total execution time.
	Duration time.Duration

	// StageResults contains results from each stage.
	StageResults map[string]*StageResult

	// Errors contains non-fatal errors that occurred.
	Errors []error
}
