package iterator

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingIterator_Transform(t *testing.T) {
	upstream := FromSlice([]int{1, 2, 3})
	mapped := NewMappingIterator[int, string](upstream, func(_ context.Context, n int) (string, bool, error) {
		return strconv.Itoa(n * 10), true, nil
	})

	items, err := Collect[string](context.Background(), mapped, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "20", "30"}, items)
}

func TestMappingIterator_DropsRecords(t *testing.T) {
	upstream := FromSlice([]int{1, 2, 3, 4, 5, 6})
	evens := NewMappingIterator[int, int](upstream, func(_ context.Context, n int) (int, bool, error) {
		return n, n%2 == 0, nil
	})

	items, err := Collect[int](context.Background(), evens, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, items)
}

func TestMappingIterator_RefillsChunks(t *testing.T) {
	// With every odd record dropped, a chunk of 3 should still come back
	// full by refilling from upstream.
	upstream := FromSlice([]int{1, 2, 3, 4, 5, 6, 7, 8})
	evens := NewMappingIterator[int, int](upstream, func(_ context.Context, n int) (int, bool, error) {
		return n, n%2 == 0, nil
	})

	chunk, err := evens.NextChunk(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, chunk)
}

func TestMappingIterator_ErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	upstream := FromSlice([]int{1, 2})
	mapped := NewMappingIterator[int, int](upstream, func(_ context.Context, n int) (int, bool, error) {
		return 0, false, boom
	})

	_, err := mapped.NextChunk(context.Background(), 10)
	assert.ErrorIs(t, err, boom)
}

func TestMappingIterator_AllDroppedIsFinished(t *testing.T) {
	upstream := FromSlice([]int{1, 3, 5})
	none := NewMappingIterator[int, int](upstream, func(_ context.Context, n int) (int, bool, error) {
		return n, false, nil
	})

	chunk, err := none.NextChunk(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestMappingIterator_Reset(t *testing.T) {
	upstream := FromSlice([]int{1, 2})
	mapped := NewMappingIterator[int, int](upstream, func(_ context.Context, n int) (int, bool, error) {
		return n, true, nil
	})
	ctx := context.Background()

	first, err := Collect[int](ctx, mapped, 10)
	require.NoError(t, err)

	require.NoError(t, mapped.Reset())
	second, err := Collect[int](ctx, mapped, 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
