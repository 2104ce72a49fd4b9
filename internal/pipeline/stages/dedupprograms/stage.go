// Package dedupprograms implements the three-tier program deduplication
// stage. A program is dropped when any tier matches an earlier-kept program
// on the same channel:
//
//  1. exact: equal lower-cased title, start, and stop (second precision)
//  2. near: equal lower-cased title with start and stop each within a
//     configurable window (default 5 minutes)
//  3. title-similar: word-token Jaccard similarity at or above a threshold
//     (default 0.9) with starts within a window (default 10 minutes)
//
// Programs arrive in ascending source priority order, so keeping the first
// occurrence retains the higher-priority source's program.
package dedupprograms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/observability"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "dedup_programs"
	// StageName is the human-readable name for this stage.
	StageName = "Program Deduplication"
)

// keptProgram records what later programs are compared against.
type keptProgram struct {
	titleNorm string
	tokens    map[string]struct{}
	start     time.Time
	stop      time.Time
}

// channelIndex indexes kept programs for one channel.
type channelIndex struct {
	exact   map[string]struct{}
	byTitle map[string][]keptProgram
	all     []keptProgram
}

// Stage deduplicates programs surviving the intersector.
type Stage struct {
	shared.BaseStage
	logger *slog.Logger
}

// New creates a new program deduplication stage.
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

// Execute wraps the program iterator with the dedup filter. The kept-program
// index is held in memory; dedup keys reference un-shifted times because the
// timeshift adjuster runs downstream.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	nearWindow := state.Pipeline.Dedup.NearWindow.Duration()
	if nearWindow <= 0 {
		nearWindow = 5 * time.Minute
	}
	similarWindow := state.Pipeline.Dedup.SimilarWindow.Duration()
	if similarWindow <= 0 {
		similarWindow = 10 * time.Minute
	}
	threshold := state.Pipeline.Dedup.TitleSimilarity
	if threshold <= 0 {
		threshold = 0.9
	}

	index := make(map[string]*channelIndex)

	state.Programs = iterator.NewMappingIterator(state.Programs, func(ctx context.Context, prog *models.EpgProgram) (*models.EpgProgram, bool, error) {
		ci := index[prog.ChannelID]
		if ci == nil {
			ci = &channelIndex{
				exact:   make(map[string]struct{}),
				byTitle: make(map[string][]keptProgram),
			}
			index[prog.ChannelID] = ci
		}

		titleNorm := normalizeTitle(prog.Title)
		start := prog.Start.Truncate(time.Second)
		stop := prog.Stop.Truncate(time.Second)

		// Tier 1: exact duplicate.
		exactKey := fmt.Sprintf("%s\x00%d\x00%d", titleNorm, start.Unix(), stop.Unix())
		if _, dup := ci.exact[exactKey]; dup {
			state.Counters.DedupExact++
			observability.RecordsDropped.WithLabelValues(StageID, "exact").Inc()
			return nil, false, nil
		}

		// Tier 2: near duplicate (same title, times within the window).
		for _, kept := range ci.byTitle[titleNorm] {
			if absDuration(kept.start.Sub(start)) <= nearWindow &&
				absDuration(kept.stop.Sub(stop)) <= nearWindow {
				state.Counters.DedupNear++
				observability.RecordsDropped.WithLabelValues(StageID, "near").Inc()
				return nil, false, nil
			}
		}

		// Tier 3: title-similar duplicate.
		tokens := titleTokens(titleNorm)
		for i := range ci.all {
			kept := &ci.all[i]
			if absDuration(kept.start.Sub(start)) > similarWindow {
				continue
			}
			if jaccard(tokens, kept.tokens) >= threshold {
				state.Counters.DedupSimilar++
				observability.RecordsDropped.WithLabelValues(StageID, "title_similar").Inc()
				return nil, false, nil
			}
		}

		entry := keptProgram{
			titleNorm: titleNorm,
			tokens:    tokens,
			start:     start,
			stop:      stop,
		}
		ci.exact[exactKey] = struct{}{}
		ci.byTitle[titleNorm] = append(ci.byTitle[titleNorm], entry)
		ci.all = append(ci.all, entry)

		return prog, true, nil
	})

	s.log(ctx, slog.LevelInfo, "program deduplication configured",
		slog.Duration("near_window", nearWindow),
		slog.Duration("similar_window", similarWindow),
		slog.Float64("title_similarity", threshold))
	result.Message = "Deduplicating programs"
	return result, nil
}

// normalizeTitle lower-cases and Unicode-normalizes a title for comparison.
func normalizeTitle(title string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(title)))
}

// titleTokens splits a normalized title into its word-token set.
func titleTokens(titleNorm string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(titleNorm) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// jaccard computes the Jaccard similarity of two token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// absDuration returns the absolute value of a duration.
func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// log logs a message if the logger is set.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// Ensure Stage implements core.Stage.
var _ core.Stage = (*Stage)(nil)
