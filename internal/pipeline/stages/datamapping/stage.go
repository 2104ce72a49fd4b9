// Package datamapping implements the data mapping pipeline stages for both
// the stream and EPG pipelines. Mapping rules share the expression engine
// with filtering; rules are compiled once per run and applied per record in
// ascending priority order.
package datamapping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/m3u-proxy/internal/expression"
	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
	"github.com/jmylchreest/m3u-proxy/internal/storage"
)

// Stage IDs and names for the two pipeline variants.
const (
	StreamStageID   = "data_mapping_stream"
	StreamStageName = "Data Mapping (Stream)"
	EpgStageID      = "data_mapping_epg"
	EpgStageName    = "Data Mapping (EPG)"
)

// compiledRule pairs a mapping rule row with its compiled expression.
type compiledRule struct {
	rule     *models.DataMappingRule
	compiled *expression.CompiledExpression
}

// StreamStage applies stream mapping rules and logo URL rewriting to every
// channel record.
type StreamStage struct {
	shared.BaseStage
	rewriter *storage.LogoRewriter
	logger   *slog.Logger
}

// NewStream creates the stream-side data mapping stage.
func NewStream(rewriter *storage.LogoRewriter) *StreamStage {
	return &StreamStage{
		BaseStage: shared.NewBaseStage(StreamStageID, StreamStageName),
		rewriter:  rewriter,
	}
}

// NewStreamConstructor returns a stage constructor for use with the engine.
func NewStreamConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := NewStream(deps.LogoRewriter)
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StreamStageID)
		}
		return s
	}
}

// Execute compiles the active stream mapping rules and wraps the channel
// iterator with the per-record transform. Compile errors are fatal; apply
// errors are record-local (the record passes unchanged).
func (s *StreamStage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	rules, processor, err := compileRules(state.Config.StreamRules, expression.DomainStream)
	if err != nil {
		return result, err
	}

	sourcesByID := make(map[models.ULID]*models.StreamSource, len(state.Config.Sources))
	for _, src := range state.Config.Sources {
		sourcesByID[src.ID] = src
	}

	rewriter := s.rewriter
	if rewriter == nil {
		rewriter = storage.NewLogoRewriter(state.BaseURL)
	}

	state.Channels = iterator.NewMappingIterator(state.Channels, func(ctx context.Context, ch *models.Channel) (*models.Channel, bool, error) {
		mapped := ch.Clone()

		if len(rules) > 0 {
			evalCtx := expression.NewChannelEvalContext(shared.ChannelFields(mapped))
			if src := sourcesByID[mapped.SourceID]; src != nil {
				evalCtx.SetSourceMetadata(src.Name, string(src.Type), src.URL)
			}

			removed, err := applyRules(rules, processor, evalCtx, &state.Counters)
			if err != nil {
				// Rule application failure is record-local: the record
				// passes through unchanged.
				state.AddError(&core.RecordError{Reason: "mapping_apply_failed", Err: err})
				state.Counters.MappingErrors++
				mapped = ch.Clone()
			} else if removed {
				state.Counters.DroppedByRule++
				return nil, false, nil
			} else {
				shared.ApplyChannelFields(mapped, evalCtx.GetAllFields())
			}
		}

		// Logo URL rewriting: internal assets become absolute URLs, external
		// absolute URLs pass through, relative values become empty.
		mapped.TvgLogo = rewriter.Rewrite(mapped.TvgLogo)

		// Timeshift values outside the supported range reset to zero.
		if mapped.TvgShift < -24 || mapped.TvgShift > 24 {
			state.AddError(&core.RecordError{
				Reason: "invalid_timeshift",
				Err:    fmt.Errorf("channel %q tvg_shift %d out of range", mapped.ChannelName, mapped.TvgShift),
			})
			mapped.TvgShift = 0
		}

		return mapped, true, nil
	})

	s.log(ctx, slog.LevelInfo, "stream data mapping configured",
		slog.Int("rule_count", len(rules)))
	result.Message = fmt.Sprintf("Applying %d mapping rules", len(rules))
	return result, nil
}

// log logs a message if the logger is set.
func (s *StreamStage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// EpgStage applies EPG mapping rules to every program record.
type EpgStage struct {
	shared.BaseStage
	logger *slog.Logger
}

// NewEpg creates the EPG-side data mapping stage.
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

// Execute compiles the active EPG mapping rules and wraps the program
// iterator with the per-record transform.
func (s *EpgStage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	rules, processor, err := compileRules(state.Config.EpgRules, expression.DomainEPG)
	if err != nil {
		return result, err
	}

	sourcesByID := make(map[models.ULID]*models.EpgSource, len(state.Config.EpgSources))
	for _, src := range state.Config.EpgSources {
		sourcesByID[src.ID] = src
	}

	state.Programs = iterator.NewMappingIterator(state.Programs, func(ctx context.Context, prog *models.EpgProgram) (*models.EpgProgram, bool, error) {
		if len(rules) == 0 {
			return prog, true, nil
		}

		mapped := prog.Clone()
		evalCtx := expression.NewProgramEvalContext(shared.ProgramFields(mapped))
		if src := sourcesByID[mapped.SourceID]; src != nil {
			evalCtx.SetSourceMetadata(src.Name, string(src.Type), src.URL)
		}

		removed, err := applyRules(rules, processor, evalCtx, &state.Counters)
		if err != nil {
			state.AddError(&core.RecordError{Reason: "mapping_apply_failed", Err: err})
			state.Counters.MappingErrors++
			return prog, true, nil
		}
		if removed {
			state.Counters.DroppedByRule++
			return nil, false, nil
		}

		shared.ApplyProgramFields(mapped, evalCtx.GetAllFields())
		return mapped, true, nil
	})

	s.log(ctx, slog.LevelInfo, "EPG data mapping configured",
		slog.Int("rule_count", len(rules)))
	result.Message = fmt.Sprintf("Applying %d EPG mapping rules", len(rules))
	return result, nil
}

// log logs a message if the logger is set.
func (s *EpgStage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// compileRules compiles mapping rule expressions for a domain. Rules arrive
// pre-sorted by priority; order is preserved.
func compileRules(rules []*models.DataMappingRule, domain expression.FieldDomain) ([]compiledRule, *expression.RuleProcessor, error) {
	compiler := expression.NewCompiler(expression.DefaultRegistry(), expression.NewEvaluator())
	processor := expression.NewRuleProcessorWithEvaluator(compiler.Evaluator())

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		expr, err := compiler.Compile(rule.Expression, domain)
		if err != nil {
			return nil, nil, fmt.Errorf("compiling mapping rule %q: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, compiled: expr})
	}
	return compiled, processor, nil
}

// applyRules evaluates rules top-to-bottom against a record context.
// Returns true when a REMOVE action drops the record.
func applyRules(rules []compiledRule, processor *expression.RuleProcessor, evalCtx expression.ModifiableContext, counters *core.Counters) (bool, error) {
	for _, cr := range rules {
		ruleResult, err := processor.Apply(cr.compiled.Parsed, evalCtx)
		if err != nil {
			return false, fmt.Errorf("applying rule %q: %w", cr.rule.Name, err)
		}
		if ruleResult.RemoveRecord {
			return true, nil
		}
		if ruleResult.Matched && cr.rule.StopOnMatch {
			break
		}
	}
	return false, nil
}

// Ensure stages implement core.Stage.
var (
	_ core.Stage = (*StreamStage)(nil)
	_ core.Stage = (*EpgStage)(nil)
)
