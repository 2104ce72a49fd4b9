package iterator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// namedRecord is a minimal record with a dedup identity.
type namedRecord struct {
	Key  string
	Name string
}

func multiOf(sources ...[]namedRecord) *MultiSourceIterator[namedRecord] {
	its := make([]Iterator[namedRecord], 0, len(sources))
	for _, s := range sources {
		its = append(its, FromSlice(s))
	}
	return NewMultiSourceIterator(its, func(r namedRecord) string {
		return strings.ToLower(r.Key)
	})
}

func TestMultiSource_PriorityOrderExhaustsEachSource(t *testing.T) {
	multi := multiOf(
		[]namedRecord{{"a", "A1"}, {"b", "B1"}},
		[]namedRecord{{"c", "C2"}, {"d", "D2"}},
	)

	items, err := Collect[namedRecord](context.Background(), multi, 10)
	require.NoError(t, err)

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	assert.Equal(t, []string{"A1", "B1", "C2", "D2"}, names)
}

func TestMultiSource_FirstSourceWins(t *testing.T) {
	multi := multiOf(
		[]namedRecord{{"cnn", "CNN from S1"}},
		[]namedRecord{{"cnn", "CNN from S2"}, {"other", "Other"}},
	)

	items, err := Collect[namedRecord](context.Background(), multi, 10)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "CNN from S1", items[0].Name)
	assert.Equal(t, "Other", items[1].Name)
	assert.Equal(t, 1, multi.DroppedDuplicates())
}

func TestMultiSource_DedupKeyCaseInsensitive(t *testing.T) {
	multi := multiOf(
		[]namedRecord{{"CNN", "upper"}},
		[]namedRecord{{"cnn", "lower"}},
	)

	items, err := Collect[namedRecord](context.Background(), multi, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "upper", items[0].Name)
}

func TestMultiSource_ChunksSpanSources(t *testing.T) {
	multi := multiOf(
		[]namedRecord{{"a", "A"}},
		[]namedRecord{{"b", "B"}, {"c", "C"}},
	)

	chunk, err := multi.NextChunk(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, chunk, 3)
}

func TestMultiSource_FinishedSticky(t *testing.T) {
	multi := multiOf([]namedRecord{{"a", "A"}})
	ctx := context.Background()

	_, err := Collect[namedRecord](ctx, multi, 10)
	require.NoError(t, err)

	chunk, err := multi.NextChunk(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestMultiSource_ResetNotSupported(t *testing.T) {
	multi := multiOf([]namedRecord{{"a", "A"}})
	assert.ErrorIs(t, multi.Reset(), ErrResetNotSupported)
}

func TestMultiSource_CloseClosesSources(t *testing.T) {
	src := FromSlice([]namedRecord{{"a", "A"}})
	multi := NewMultiSourceIterator([]Iterator[namedRecord]{src}, nil)

	require.NoError(t, multi.Close())
	require.NoError(t, multi.Close()) // idempotent

	chunk, err := src.NextChunk(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestMultiSource_NilKeyFuncNoDedup(t *testing.T) {
	multi := NewMultiSourceIterator([]Iterator[namedRecord]{
		FromSlice([]namedRecord{{"x", "first"}}),
		FromSlice([]namedRecord{{"x", "second"}}),
	}, nil)

	items, err := Collect[namedRecord](context.Background(), multi, 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
