package expression

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FieldModification records a modification made to a field.
type FieldModification struct {
	Field    string         // Field name that was modified
	OldValue string         // Previous value
	NewValue string         // New value
	Action   ActionOperator // Action that was performed
}

// RuleResult contains the result of applying a rule.
type RuleResult struct {
	// Matched indicates whether the rule's condition matched.
	Matched bool

	// Modifications lists all field modifications made.
	Modifications []FieldModification

	// RemoveRecord indicates the record must be dropped from the pipeline.
	RemoveRecord bool

	// Captures contains regex capture groups if any.
	Captures []string
}

// ModifiableContext extends FieldValueAccessor with the ability to set field values.
type ModifiableContext interface {
	FieldValueAccessor
	SetFieldValue(name, value string)
}

// RuleProcessor applies rules (conditions + actions) to records.
type RuleProcessor struct {
	evaluator *Evaluator
}

// NewRuleProcessor creates a new rule processor.
func NewRuleProcessor() *RuleProcessor {
	return &RuleProcessor{
		evaluator: NewEvaluator(),
	}
}

// NewRuleProcessorWithEvaluator creates a rule processor sharing an existing
// evaluator (and its regex cache).
func NewRuleProcessorWithEvaluator(evaluator *Evaluator) *RuleProcessor {
	return &RuleProcessor{evaluator: evaluator}
}

// Apply applies a parsed expression (rule) to a context.
// Returns the result including whether the condition matched, any
// modifications made, and whether the record must be dropped.
func (p *RuleProcessor) Apply(parsed *ParsedExpression, ctx ModifiableContext) (*RuleResult, error) {
	if parsed == nil || parsed.Expression == nil {
		return &RuleResult{Matched: true}, nil
	}

	evalResult, err := p.evaluator.Evaluate(parsed, ctx)
	if err != nil {
		return nil, fmt.Errorf("condition evaluation failed: %w", err)
	}

	result := &RuleResult{
		Matched:  evalResult.Matches,
		Captures: evalResult.Captures,
	}

	if !evalResult.Matches {
		return result, nil
	}

	if expr, ok := parsed.Expression.(*ConditionWithActions); ok {
		if err := p.applyActions(expr.Actions, ctx, evalResult.Captures, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// applyActions applies a list of actions to the context.
// A record-removal action stops further evaluation.
func (p *RuleProcessor) applyActions(actions []*Action, ctx ModifiableContext, captures []string, result *RuleResult) error {
	for _, action := range actions {
		if action.Operator == ActionRemoveRecord {
			result.RemoveRecord = true
			return nil
		}

		mod, applied, err := p.applyAction(action, ctx, captures)
		if err != nil {
			return err
		}
		if applied {
			result.Modifications = append(result.Modifications, mod)
		}
	}
	return nil
}

// applyAction applies a single action to the context.
// Returns the modification, whether it was applied, and any error.
func (p *RuleProcessor) applyAction(action *Action, ctx ModifiableContext, captures []string) (FieldModification, bool, error) {
	field := action.Field
	oldValue, _ := ctx.GetFieldValue(field)

	var newValue string
	var err error

	switch action.Operator {
	case ActionSet:
		newValue, err = p.resolveValue(action.Value, ctx, captures)
		if err != nil {
			return FieldModification{}, false, err
		}

	case ActionSetIfEmpty:
		if oldValue != "" {
			return FieldModification{}, false, nil
		}
		newValue, err = p.resolveValue(action.Value, ctx, captures)
		if err != nil {
			return FieldModification{}, false, err
		}

	case ActionAppend:
		appendValue, err := p.resolveValue(action.Value, ctx, captures)
		if err != nil {
			return FieldModification{}, false, err
		}
		newValue = oldValue + appendValue

	case ActionDeleteField:
		newValue = ""

	default:
		return FieldModification{}, false, fmt.Errorf("unsupported action operator: %s", action.Operator)
	}

	ctx.SetFieldValue(field, newValue)

	return FieldModification{
		Field:    field,
		OldValue: oldValue,
		NewValue: newValue,
		Action:   action.Operator,
	}, true, nil
}

// resolveValue resolves an action value to a string.
func (p *RuleProcessor) resolveValue(value ActionValue, ctx ModifiableContext, captures []string) (string, error) {
	if value == nil {
		return "", nil
	}

	switch v := value.(type) {
	case *LiteralValue:
		return substituteCaptureReferences(v.Value, captures), nil

	case *FieldReference:
		fieldValue, _ := ctx.GetFieldValue(v.Field)
		return fieldValue, nil

	case *CaptureReference:
		if v.Index < 0 || v.Index >= len(captures) {
			return "", nil
		}
		return captures[v.Index], nil

	default:
		return "", fmt.Errorf("unsupported value type: %T", value)
	}
}

// captureRefPattern matches $1, $2, etc. in template literals.
var captureRefPattern = regexp.MustCompile(`\$(\d+)`)

// substituteCaptureReferences replaces $1..$N with capture group values.
// Invalid references are left as-is.
func substituteCaptureReferences(value string, captures []string) string {
	if len(captures) == 0 || !strings.Contains(value, "$") {
		return value
	}

	return captureRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		idx, err := strconv.Atoi(match[1:])
		if err != nil || idx < 0 || idx >= len(captures) {
			return match
		}
		return captures[idx]
	})
}
