package expression

import (
	"fmt"
	"strings"
)

// FieldUnknownError reports a reference to a field that is not valid for the
// expression's domain, with the nearest known field as a suggestion.
type FieldUnknownError struct {
	Name       string
	Suggestion string
}

// Error implements the error interface.
func (e *FieldUnknownError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown field %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown field %q", e.Name)
}

// CompiledExpression is a parsed expression whose field names have been
// canonicalized and whose regex patterns have been compiled. Compilation
// happens once per pipeline run; the compiled form is reused per record.
type CompiledExpression struct {
	// Parsed is the canonicalized AST.
	Parsed *ParsedExpression
	// Domain is the field domain the expression was compiled for.
	Domain FieldDomain
}

// Compiler compiles expression strings for a field domain against a registry.
type Compiler struct {
	registry  *FieldRegistry
	evaluator *Evaluator
}

// NewCompiler creates a compiler using the given registry and evaluator.
// The evaluator's regex cache receives the precompiled patterns; sharing the
// evaluator between compiler and processors avoids recompiling per record.
func NewCompiler(registry *FieldRegistry, evaluator *Evaluator) *Compiler {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if evaluator == nil {
		evaluator = NewEvaluator()
	}
	return &Compiler{
		registry:  registry,
		evaluator: evaluator,
	}
}

// Evaluator returns the evaluator holding the compiler's regex cache.
func (c *Compiler) Evaluator() *Evaluator {
	return c.evaluator
}

// Compile parses and validates an expression for the given domain.
// Unknown fields, unparsable expressions, and invalid regex patterns all fail
// here rather than at record-processing time.
func (c *Compiler) Compile(input string, domain FieldDomain) (*CompiledExpression, error) {
	parsed, err := Parse(input)
	if err != nil {
		return nil, err
	}

	if err := c.canonicalize(parsed, domain); err != nil {
		return nil, err
	}

	if err := c.precompileRegexes(parsed); err != nil {
		return nil, err
	}

	return &CompiledExpression{
		Parsed: parsed,
		Domain: domain,
	}, nil
}

// canonicalize resolves field aliases to canonical names and rejects
// references to fields that are not valid in the domain.
func (c *Compiler) canonicalize(parsed *ParsedExpression, domain FieldDomain) error {
	valid := c.registry.NamesForDomain(domain)

	check := func(name string) error {
		if !valid[name] {
			return &FieldUnknownError{
				Name:       name,
				Suggestion: c.suggestField(name, valid),
			}
		}
		return nil
	}

	var walkErr error
	var walk func(node ConditionNode)
	walk = func(node ConditionNode) {
		if walkErr != nil {
			return
		}
		switch n := node.(type) {
		case *Condition:
			if err := check(n.Field); err != nil {
				walkErr = err
				return
			}
			n.Field = c.registry.Resolve(n.Field)
		case *ConditionGroup:
			for _, child := range n.Children {
				walk(child)
			}
		}
	}

	var tree *ConditionTree
	var actions []*Action
	switch expr := parsed.Expression.(type) {
	case *ConditionOnly:
		tree = expr.Condition
	case *ConditionWithActions:
		tree = expr.Condition
		actions = expr.Actions
	}

	if tree != nil && tree.Root != nil {
		walk(tree.Root)
	}
	if walkErr != nil {
		return walkErr
	}

	for _, action := range actions {
		if action.Operator == ActionRemoveRecord {
			continue
		}
		if err := check(action.Field); err != nil {
			return err
		}
		action.Field = c.registry.Resolve(action.Field)
		if def, ok := c.registry.Get(action.Field); ok && def.ReadOnly {
			return fmt.Errorf("field %q is read-only and cannot be modified", action.Field)
		}
		if ref, ok := action.Value.(*FieldReference); ok {
			if err := check(ref.Field); err != nil {
				return err
			}
			ref.Field = c.registry.Resolve(ref.Field)
		}
	}

	// Re-derive metadata now that names are canonical.
	parsed.ReferencedFields = nil
	parsed.ModifiedFields = nil
	if tree != nil && tree.Root != nil {
		parsed.ReferencedFields = extractConditionFields(tree.Root)
	}
	for _, action := range actions {
		if action.Field != "" {
			parsed.ModifiedFields = append(parsed.ModifiedFields, action.Field)
		}
	}

	return nil
}

// precompileRegexes compiles every regex pattern in the expression so that
// invalid patterns surface at compile time.
func (c *Compiler) precompileRegexes(parsed *ParsedExpression) error {
	var tree *ConditionTree
	switch expr := parsed.Expression.(type) {
	case *ConditionOnly:
		tree = expr.Condition
	case *ConditionWithActions:
		tree = expr.Condition
	}
	if tree == nil || tree.Root == nil {
		return nil
	}

	var compileErr error
	var walk func(node ConditionNode)
	walk = func(node ConditionNode) {
		if compileErr != nil {
			return
		}
		switch n := node.(type) {
		case *Condition:
			if n.Operator.IsRegex() {
				pattern := n.Value
				if !n.CaseSensitive {
					pattern = "(?i)" + pattern
				}
				if _, err := c.evaluator.getOrCompileRegex(pattern); err != nil {
					compileErr = &RegexError{Pattern: n.Value, Err: err}
				}
			}
		case *ConditionGroup:
			for _, child := range n.Children {
				walk(child)
			}
		}
	}
	walk(tree.Root)
	return compileErr
}

// suggestField finds the closest known field name for an unknown reference.
func (c *Compiler) suggestField(name string, valid map[string]bool) string {
	var best string
	bestScore := 0

	for candidate := range valid {
		score := similarity(name, candidate)
		if score > bestScore && score >= 55 {
			bestScore = score
			best = candidate
		}
	}

	return best
}

// similarity calculates a simple similarity score between two strings based
// on character overlap, scaled to 0-100.
func similarity(a, b string) int {
	if a == b {
		return 100
	}

	aLower := strings.ToLower(a)
	bLower := strings.ToLower(b)

	aChars := make(map[rune]bool)
	for _, ch := range aLower {
		aChars[ch] = true
	}
	bChars := make(map[rune]bool)
	for _, ch := range bLower {
		bChars[ch] = true
	}

	common := 0
	for ch := range aChars {
		if bChars[ch] {
			common++
		}
	}

	maxLen := len(aLower)
	if len(bLower) > maxLen {
		maxLen = len(bLower)
	}
	if maxLen == 0 {
		return 0
	}

	return (common * 100) / maxLen
}
