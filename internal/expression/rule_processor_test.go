package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyRule(t *testing.T, input string, fields map[string]string) (*RuleResult, *ChannelEvalContext) {
	t.Helper()
	parsed, err := Parse(input)
	require.NoError(t, err)

	ctx := NewChannelEvalContext(fields)
	result, err := NewRuleProcessor().Apply(parsed, ctx)
	require.NoError(t, err)
	return result, ctx
}

func TestApply_Set(t *testing.T) {
	result, ctx := applyRule(t, `channel_name contains "news" SET group_title = "News"`,
		map[string]string{"channel_name": "NewsFirst", "group_title": "Misc"})

	assert.True(t, result.Matched)
	require.Len(t, result.Modifications, 1)
	assert.Equal(t, "Misc", result.Modifications[0].OldValue)

	value, _ := ctx.GetFieldValue("group_title")
	assert.Equal(t, "News", value)
}

func TestApply_SetIfEmpty(t *testing.T) {
	// Populated field: no modification.
	result, ctx := applyRule(t, `tvg_name ?= "fallback"`,
		map[string]string{"tvg_name": "Existing"})
	assert.True(t, result.Matched)
	assert.Empty(t, result.Modifications)
	value, _ := ctx.GetFieldValue("tvg_name")
	assert.Equal(t, "Existing", value)

	// Empty field: set.
	_, ctx = applyRule(t, `tvg_name ?= "fallback"`, map[string]string{})
	value, _ = ctx.GetFieldValue("tvg_name")
	assert.Equal(t, "fallback", value)
}

func TestApply_MappingRoundTripLaw(t *testing.T) {
	// SET x then ?= y leaves the field at x.
	fields := map[string]string{"group_title": ""}
	ctx := NewChannelEvalContext(fields)
	processor := NewRuleProcessor()

	first := MustParse(`group_title = "x"`)
	second := MustParse(`group_title ?= "y"`)

	_, err := processor.Apply(first, ctx)
	require.NoError(t, err)
	_, err = processor.Apply(second, ctx)
	require.NoError(t, err)

	value, _ := ctx.GetFieldValue("group_title")
	assert.Equal(t, "x", value)
}

func TestApply_Append(t *testing.T) {
	_, ctx := applyRule(t, `channel_name += " HD"`,
		map[string]string{"channel_name": "CinemaMax"})
	value, _ := ctx.GetFieldValue("channel_name")
	assert.Equal(t, "CinemaMax HD", value)
}

func TestApply_DeleteField(t *testing.T) {
	_, ctx := applyRule(t, `tvg_logo contains "broken" DELETE tvg_logo`,
		map[string]string{"tvg_logo": "http://broken.example.com/logo.png"})
	value, _ := ctx.GetFieldValue("tvg_logo")
	assert.Empty(t, value)
}

func TestApply_RemoveRecord(t *testing.T) {
	result, _ := applyRule(t, `group_title contains "shopping" REMOVE`,
		map[string]string{"group_title": "Shopping Deals"})
	assert.True(t, result.Matched)
	assert.True(t, result.RemoveRecord)
}

func TestApply_RemoveRecordNotMatched(t *testing.T) {
	result, _ := applyRule(t, `group_title contains "shopping" REMOVE`,
		map[string]string{"group_title": "News"})
	assert.False(t, result.Matched)
	assert.False(t, result.RemoveRecord)
}

func TestApply_CaptureSubstitution(t *testing.T) {
	_, ctx := applyRule(t, `channel_name matches "(.*) (HD|4K)$" SET tvg_name = $1, group_title = "Quality $2"`,
		map[string]string{"channel_name": "AeroVision Prime 4K"})

	tvgName, _ := ctx.GetFieldValue("tvg_name")
	assert.Equal(t, "AeroVision Prime", tvgName)

	group, _ := ctx.GetFieldValue("group_title")
	assert.Equal(t, "Quality 4K", group)
}

func TestApply_FieldReference(t *testing.T) {
	_, ctx := applyRule(t, `tvg_name ?= $channel_name`,
		map[string]string{"channel_name": "GlobalStream One"})
	value, _ := ctx.GetFieldValue("tvg_name")
	assert.Equal(t, "GlobalStream One", value)
}

func TestApply_NoMatchNoActions(t *testing.T) {
	result, ctx := applyRule(t, `channel_name contains "sports" SET group_title = "Sports"`,
		map[string]string{"channel_name": "NewsFirst", "group_title": "News"})

	assert.False(t, result.Matched)
	assert.Empty(t, result.Modifications)
	value, _ := ctx.GetFieldValue("group_title")
	assert.Equal(t, "News", value)
}
