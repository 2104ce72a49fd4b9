package iterator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/m3u-proxy/internal/memory"
)

// slowIterator wraps a slice iterator, counting chunks and optionally
// delaying production.
type slowIterator struct {
	*SliceIterator[int]
	chunks atomic.Int64
	delay  time.Duration
}

func (s *slowIterator) NextChunk(ctx context.Context, maxItems int) ([]int, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	s.chunks.Add(1)
	return s.SliceIterator.NextChunk(ctx, maxItems)
}

func intRange(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func TestBuffered_DeliversAllRecordsInOrder(t *testing.T) {
	upstream := FromSlice(intRange(5000))
	bridge := NewBuffered[int](context.Background(), upstream, BridgeConfig{MaxConcurrentChunks: 4})
	defer bridge.Close()

	items, err := Collect[int](context.Background(), bridge, 100)
	require.NoError(t, err)
	assert.Equal(t, intRange(5000), items)
}

func TestBuffered_InFlightNeverExceedsPermits(t *testing.T) {
	const maxConcurrent = 3

	upstream := FromSlice(intRange(10000))
	bridge := NewBuffered[int](context.Background(), upstream, BridgeConfig{MaxConcurrentChunks: maxConcurrent})
	defer bridge.Close()

	ctx := context.Background()
	for {
		chunk, err := bridge.NextChunk(ctx, 100)
		require.NoError(t, err)
		if chunk == nil {
			break
		}
		// Give the producer a chance to overfill if it were going to.
		time.Sleep(time.Microsecond)
	}

	assert.LessOrEqual(t, bridge.InFlightHighWater(), maxConcurrent)
	assert.Greater(t, bridge.InFlightHighWater(), 0)
}

func TestBuffered_FinishedSticky(t *testing.T) {
	bridge := NewBuffered[int](context.Background(), FromSlice(intRange(10)), BridgeConfig{MaxConcurrentChunks: 2})
	defer bridge.Close()

	ctx := context.Background()
	_, err := Collect[int](ctx, bridge, 100)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		chunk, err := bridge.NextChunk(ctx, 100)
		require.NoError(t, err)
		assert.Nil(t, chunk)
	}
}

func TestBuffered_UpstreamErrorPropagatesAndSticks(t *testing.T) {
	boom := errors.New("upstream boom")
	upstream := NewMappingIterator[int, int](FromSlice(intRange(10)), func(_ context.Context, n int) (int, bool, error) {
		if n >= 5 {
			return 0, false, boom
		}
		return n, true, nil
	})

	bridge := NewBuffered[int](context.Background(), upstream, BridgeConfig{MaxConcurrentChunks: 2})
	defer bridge.Close()

	ctx := context.Background()
	var lastErr error
	for {
		chunk, err := bridge.NextChunk(ctx, 3)
		if err != nil {
			lastErr = err
			break
		}
		if chunk == nil {
			break
		}
	}
	require.ErrorIs(t, lastErr, boom)

	// Error is sticky.
	_, err := bridge.NextChunk(ctx, 3)
	assert.ErrorIs(t, err, boom)
}

func TestBuffered_CancellationStopsProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	upstream := &slowIterator{SliceIterator: FromSlice(intRange(100000)), delay: time.Millisecond}
	bridge := NewBuffered[int](ctx, upstream, BridgeConfig{MaxConcurrentChunks: 2})

	_, err := bridge.NextChunk(ctx, 10)
	require.NoError(t, err)

	cancel()
	require.NoError(t, bridge.Close())
}

func TestBuffered_CloseIsIdempotent(t *testing.T) {
	bridge := NewBuffered[int](context.Background(), FromSlice(intRange(10)), BridgeConfig{MaxConcurrentChunks: 2})
	require.NoError(t, bridge.Close())
	require.NoError(t, bridge.Close())
}

func TestBuffered_PressureShrinksChunks(t *testing.T) {
	probe := &stubProbe{}
	governor := memory.NewGovernor(1000,
		memory.WithProbe(probe),
		memory.WithSampleInterval(time.Nanosecond),
	)
	selector := memory.NewSelector(100, 200, 20, 4)

	probe.rss.Store(100) // Optimal
	governor.Refresh()

	upstream := FromSlice(intRange(10000))
	bridge := NewBuffered[int](context.Background(), upstream, BridgeConfig{
		MaxConcurrentChunks: 2,
		Governor:            governor,
		Selector:            selector,
	})
	defer bridge.Close()

	ctx := context.Background()

	first, err := bridge.NextChunk(ctx, 0)
	require.NoError(t, err)
	preTransition := len(first)

	// Push the governor to High pressure; chunk sizes must drop to at most
	// half the pre-transition size.
	probe.rss.Store(800)
	governor.Refresh()

	var minAfter int
	for i := 0; i < 20; i++ {
		chunk, err := bridge.NextChunk(ctx, 0)
		require.NoError(t, err)
		if chunk == nil {
			break
		}
		minAfter = len(chunk)
	}

	assert.Equal(t, 200, preTransition)
	assert.LessOrEqual(t, minAfter, preTransition/2)
}

// stubProbe is an atomic fake RSS probe.
type stubProbe struct {
	rss atomic.Uint64
}

func (p *stubProbe) CurrentRSSBytes() (uint64, bool) {
	return p.rss.Load(), true
}

func TestBuffered_SetBufferSizeCapsChunks(t *testing.T) {
	bridge := NewBuffered[int](context.Background(), FromSlice(intRange(1000)), BridgeConfig{MaxConcurrentChunks: 2})
	defer bridge.Close()

	bridge.SetBufferSize(10)

	ctx := context.Background()
	// Skip chunks that may have been prefetched before the adjustment.
	sawCapped := false
	for i := 0; i < 200; i++ {
		chunk, err := bridge.NextChunk(ctx, 0)
		require.NoError(t, err)
		if chunk == nil {
			break
		}
		if len(chunk) <= 10 {
			sawCapped = true
		}
	}
	assert.True(t, sawCapped)
}
