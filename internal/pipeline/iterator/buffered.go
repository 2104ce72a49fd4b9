package iterator

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/jmylchreest/m3u-proxy/internal/memory"
)

// chunkMsg carries one completed chunk (or a terminal error) from the
// producer goroutine to the consumer.
type chunkMsg[T any] struct {
	items []T
	err   error
}

// BufferedIterator is the stage bridge: it wraps any iterator, prefetches
// completed chunks into a bounded buffer on a separate goroutine, and
// enforces backpressure with a counting permit so that at no point do more
// than maxConcurrentChunks chunks sit in flight. Buffer depth and chunk size
// adjust dynamically to the memory governor's pressure level, polled at chunk
// boundaries.
type BufferedIterator[T any] struct {
	upstream Iterator[T]
	governor *memory.Governor
	selector *memory.Selector

	sem      *semaphore.Weighted
	ch       chan chunkMsg[T]
	progress chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}

	chunkOverride atomic.Int64
	inFlight      atomic.Int64
	highWater     atomic.Int64

	closeOnce sync.Once
	closeErr  error

	pending  []T
	err      error
	finished bool
}

// BridgeConfig configures a stage bridge.
type BridgeConfig struct {
	// MaxConcurrentChunks caps in-flight chunks (the counting permit).
	MaxConcurrentChunks int
	// Governor supplies the current pressure level. Nil disables dynamic
	// adjustment; the bridge then always runs at full depth.
	Governor *memory.Governor
	// Selector maps pressure levels to chunk size and buffer depth.
	Selector *memory.Selector
}

// NewBuffered wraps upstream in a stage bridge. The returned iterator owns
// upstream and closes it when the bridge is closed. The producer goroutine
// observes ctx: cancellation is visible at every chunk boundary.
func NewBuffered[T any](ctx context.Context, upstream Iterator[T], cfg BridgeConfig) *BufferedIterator[T] {
	maxConcurrent := cfg.MaxConcurrentChunks
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	selector := cfg.Selector
	if selector == nil {
		selector = memory.NewSelector(1000, 2000, 20, maxConcurrent)
	}

	prodCtx, cancel := context.WithCancel(ctx)
	b := &BufferedIterator[T]{
		upstream: upstream,
		governor: cfg.Governor,
		selector: selector,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		ch:       make(chan chunkMsg[T], maxConcurrent),
		progress: make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go b.produce(prodCtx)
	return b
}

// produce prefetches chunks from upstream until exhaustion, error, or cancel.
func (b *BufferedIterator[T]) produce(ctx context.Context) {
	defer close(b.done)
	defer close(b.ch)

	for {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return
		}

		resp := b.currentResponse()

		// Honor the dynamic buffer depth: do not prefetch while the number of
		// undelivered chunks meets the depth for the current pressure level.
		for b.inFlight.Load() >= int64(resp.BufferDepth) {
			select {
			case <-ctx.Done():
				b.sem.Release(1)
				return
			case <-b.progress:
			}
			resp = b.currentResponse()
		}

		size := resp.ChunkSize
		if override := b.chunkOverride.Load(); override > 0 && int(override) < size {
			size = int(override)
		}

		chunk, err := b.upstream.NextChunk(ctx, size)
		if err != nil && ctx.Err() != nil {
			b.sem.Release(1)
			return
		}

		n := b.inFlight.Add(1)
		if hw := b.highWater.Load(); n > hw {
			b.highWater.CompareAndSwap(hw, n)
		}

		select {
		case b.ch <- chunkMsg[T]{items: chunk, err: err}:
		case <-ctx.Done():
			b.inFlight.Add(-1)
			b.sem.Release(1)
			return
		}

		if err != nil || chunk == nil {
			return
		}
	}
}

// currentResponse returns the selector response for the current pressure.
func (b *BufferedIterator[T]) currentResponse() memory.Response {
	level := memory.PressureOptimal
	if b.governor != nil {
		level = b.governor.Level()
	}
	return b.selector.Respond(level)
}

// NextChunk returns the next buffered chunk. When the prefetched chunk is
// larger than maxItems, the remainder is held back for the next call.
func (b *BufferedIterator[T]) NextChunk(ctx context.Context, maxItems int) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}
	if len(b.pending) > 0 {
		return b.take(b.pending, maxItems), nil
	}
	if b.finished {
		return nil, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-b.ch:
		if !ok {
			b.finished = true
			return nil, nil
		}
		b.inFlight.Add(-1)
		b.sem.Release(1)
		select {
		case b.progress <- struct{}{}:
		default:
		}

		if msg.err != nil {
			b.err = msg.err
			return nil, msg.err
		}
		if msg.items == nil {
			b.finished = true
			return nil, nil
		}
		return b.take(msg.items, maxItems), nil
	}
}

// take returns at most maxItems from items, stashing the remainder.
func (b *BufferedIterator[T]) take(items []T, maxItems int) []T {
	if maxItems <= 0 || len(items) <= maxItems {
		b.pending = nil
		return items
	}
	b.pending = items[maxItems:]
	return items[:maxItems]
}

// SetBufferSize advises the chunk size for subsequent prefetches.
// Downward adjustments take effect on the next produced chunk.
func (b *BufferedIterator[T]) SetBufferSize(n int) {
	if n > 0 {
		b.chunkOverride.Store(int64(n))
	}
}

// Close stops the producer, drains the buffer, and closes upstream.
// Idempotent.
func (b *BufferedIterator[T]) Close() error {
	b.closeOnce.Do(func() {
		b.cancel()
		<-b.done
		for range b.ch {
		}
		b.pending = nil
		b.finished = true
		b.closeErr = b.upstream.Close()
	})
	return b.closeErr
}

// Reset is not supported: buffered chunks cannot be rewound.
func (b *BufferedIterator[T]) Reset() error {
	return ErrResetNotSupported
}

// InFlightHighWater reports the maximum number of chunks that were in flight
// simultaneously. Never exceeds the configured MaxConcurrentChunks.
func (b *BufferedIterator[T]) InFlightHighWater() int {
	return int(b.highWater.Load())
}
