// Package filtering implements the filter pipeline stages for both the
// stream and EPG pipelines. Filters are compiled once per run; a record is
// kept iff the expression matches XOR the filter excludes, and must survive
// every active filter to continue.
package filtering

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/m3u-proxy/internal/expression"
	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/observability"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
)

// Stage IDs and names for the two pipeline variants.
const (
	StreamStageID   = "filtering_stream"
	StreamStageName = "Filtering (Stream)"
	EpgStageID      = "filtering_epg"
	EpgStageName    = "Filtering (EPG)"
)

// compiledFilter pairs a filter row with its compiled expression.
type compiledFilter struct {
	filter   *models.Filter
	compiled *expression.CompiledExpression
}

// survives evaluates one filter against a record context.
func (cf *compiledFilter) survives(evaluator *expression.Evaluator, evalCtx expression.FieldValueAccessor) (bool, error) {
	result, err := evaluator.Evaluate(cf.compiled.Parsed, evalCtx)
	if err != nil {
		return false, err
	}
	// Keep iff matched XOR exclude.
	return result.Matches != cf.filter.IsExclude(), nil
}

// compileFilters compiles filter expressions for a domain, preserving the
// pre-sorted priority order.
func compileFilters(filters []*models.Filter, domain expression.FieldDomain) ([]compiledFilter, *expression.Evaluator, error) {
	compiler := expression.NewCompiler(expression.DefaultRegistry(), expression.NewEvaluator())

	compiled := make([]compiledFilter, 0, len(filters))
	for _, f := range filters {
		expr, err := compiler.Compile(f.Expression, domain)
		if err != nil {
			return nil, nil, fmt.Errorf("compiling filter %q: %w", f.Name, err)
		}
		compiled = append(compiled, compiledFilter{filter: f, compiled: expr})
	}
	return compiled, compiler.Evaluator(), nil
}

// StreamStage filters channel records.
type StreamStage struct {
	shared.BaseStage
	logger *slog.Logger
}

// NewStream creates the stream-side filtering stage.
func NewStream() *StreamStage {
	return &StreamStage{
		BaseStage: shared.NewBaseStage(StreamStageID, StreamStageName),
	}
}

// NewStreamConstructor returns a stage constructor for use with the engine.
func NewStreamConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := NewStream()
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StreamStageID)
		}
		return s
	}
}

// Execute compiles the active stream filters and wraps the channel iterator.
func (s *StreamStage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	filters, evaluator, err := compileFilters(state.Config.StreamFilters, expression.DomainStream)
	if err != nil {
		return result, err
	}

	if len(filters) == 0 {
		s.log(ctx, slog.LevelDebug, "no stream filters configured")
		result.Message = "No filters"
		return result, nil
	}

	sourcesByID := make(map[models.ULID]*models.StreamSource, len(state.Config.Sources))
	for _, src := range state.Config.Sources {
		sourcesByID[src.ID] = src
	}

	state.Channels = iterator.NewMappingIterator(state.Channels, func(ctx context.Context, ch *models.Channel) (*models.Channel, bool, error) {
		evalCtx := expression.NewChannelEvalContext(shared.ChannelFields(ch))
		if src := sourcesByID[ch.SourceID]; src != nil {
			evalCtx.SetSourceMetadata(src.Name, string(src.Type), src.URL)
		}

		for i := range filters {
			cf := &filters[i]
			if cf.filter.SourceID != nil && *cf.filter.SourceID != ch.SourceID {
				continue
			}
			keep, err := cf.survives(evaluator, evalCtx)
			if err != nil {
				return nil, false, fmt.Errorf("evaluating filter %q: %w", cf.filter.Name, err)
			}
			if !keep {
				state.Counters.DroppedByFilter++
				observability.RecordsDropped.WithLabelValues(StreamStageID, "filter").Inc()
				return nil, false, nil
			}
		}
		return ch, true, nil
	})

	s.log(ctx, slog.LevelInfo, "stream filtering configured",
		slog.Int("filter_count", len(filters)))
	result.Message = fmt.Sprintf("Applying %d filters", len(filters))
	return result, nil
}

// log logs a message if the logger is set.
func (s *StreamStage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// EpgStage filters program records.
type EpgStage struct {
	shared.BaseStage
	logger *slog.Logger
}

// NewEpg creates the EPG-side filtering stage.
func NewEpg() *EpgStage {
	return &EpgStage{
		BaseStage: shared.NewBaseStage(EpgStageID, EpgStageName),
	}
}

// NewEpgConstructor returns a stage constructor for use with the engine.
func NewEpgConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := NewEpg()
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", EpgStageID)
		}
		return s
	}
}

// Execute compiles the active EPG filters and wraps the program iterator.
func (s *EpgStage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	filters, evaluator, err := compileFilters(state.Config.EpgFilters, expression.DomainEPG)
	if err != nil {
		return result, err
	}

	if len(filters) == 0 {
		s.log(ctx, slog.LevelDebug, "no EPG filters configured")
		result.Message = "No filters"
		return result, nil
	}

	sourcesByID := make(map[models.ULID]*models.EpgSource, len(state.Config.EpgSources))
	for _, src := range state.Config.EpgSources {
		sourcesByID[src.ID] = src
	}

	state.Programs = iterator.NewMappingIterator(state.Programs, func(ctx context.Context, prog *models.EpgProgram) (*models.EpgProgram, bool, error) {
		evalCtx := expression.NewProgramEvalContext(shared.ProgramFields(prog))
		if src := sourcesByID[prog.SourceID]; src != nil {
			evalCtx.SetSourceMetadata(src.Name, string(src.Type), src.URL)
		}

		for i := range filters {
			cf := &filters[i]
			if cf.filter.SourceID != nil && *cf.filter.SourceID != prog.SourceID {
				continue
			}
			keep, err := cf.survives(evaluator, evalCtx)
			if err != nil {
				return nil, false, fmt.Errorf("evaluating filter %q: %w", cf.filter.Name, err)
			}
			if !keep {
				state.Counters.DroppedByFilter++
				observability.RecordsDropped.WithLabelValues(EpgStageID, "filter").Inc()
				return nil, false, nil
			}
		}
		return prog, true, nil
	})

	s.log(ctx, slog.LevelInfo, "EPG filtering configured",
		slog.Int("filter_count", len(filters)))
	result.Message = fmt.Sprintf("Applying %d EPG filters", len(filters))
	return result, nil
}

// log logs a message if the logger is set.
func (s *EpgStage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// Ensure stages implement core.Stage.
var (
	_ core.Stage = (*StreamStage)(nil)
	_ core.Stage = (*EpgStage)(nil)
)
