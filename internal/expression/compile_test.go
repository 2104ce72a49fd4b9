package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompiler() *Compiler {
	return NewCompiler(DefaultRegistry(), NewEvaluator())
}

func TestCompile_CanonicalizesAliases(t *testing.T) {
	compiled, err := newTestCompiler().Compile(`group equals "News"`, DomainStream)
	require.NoError(t, err)

	cond := compiled.Parsed.Expression.(*ConditionOnly).Condition.Root.(*Condition)
	assert.Equal(t, "group_title", cond.Field)
	assert.Equal(t, []string{"group_title"}, compiled.Parsed.ReferencedFields)
}

func TestCompile_ProgramTitleAlias(t *testing.T) {
	compiled, err := newTestCompiler().Compile(`program_title contains "news"`, DomainEPG)
	require.NoError(t, err)

	cond := compiled.Parsed.Expression.(*ConditionOnly).Condition.Root.(*Condition)
	assert.Equal(t, "programme_title", cond.Field)
}

func TestCompile_UnknownFieldWithSuggestion(t *testing.T) {
	_, err := newTestCompiler().Compile(`chanel_name contains "x"`, DomainStream)
	require.Error(t, err)

	var unknownErr *FieldUnknownError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "chanel_name", unknownErr.Name)
	assert.Equal(t, "channel_name", unknownErr.Suggestion)
}

func TestCompile_FieldWrongDomain(t *testing.T) {
	// programme_title is not a stream field.
	_, err := newTestCompiler().Compile(`programme_title contains "x"`, DomainStream)
	var unknownErr *FieldUnknownError
	require.ErrorAs(t, err, &unknownErr)
}

func TestCompile_InvalidRegex(t *testing.T) {
	_, err := newTestCompiler().Compile(`channel_name matches "("`, DomainStream)
	require.Error(t, err)

	var regexErr *RegexError
	assert.ErrorAs(t, err, &regexErr)
}

func TestCompile_ReadOnlyActionField(t *testing.T) {
	_, err := newTestCompiler().Compile(`channel_name contains "x" SET stream_url = "http://other"`, DomainStream)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestCompile_ActionFieldAlias(t *testing.T) {
	compiled, err := newTestCompiler().Compile(`name contains "x" SET group = "Premium"`, DomainStream)
	require.NoError(t, err)

	expr := compiled.Parsed.Expression.(*ConditionWithActions)
	assert.Equal(t, "group_title", expr.Actions[0].Field)
}

func TestCompile_RemoveNeedsNoField(t *testing.T) {
	_, err := newTestCompiler().Compile(`group_title contains "shopping" REMOVE`, DomainStream)
	assert.NoError(t, err)
}

func TestCompile_ParseErrorSurfaces(t *testing.T) {
	_, err := newTestCompiler().Compile(`channel_name bogus "x"`, DomainStream)
	assert.Error(t, err)
}
