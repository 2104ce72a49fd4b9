package iterator

import (
	"context"
)

// KeyFunc derives the deduplication key for a record. Records whose key was
// already emitted by an earlier (higher-priority) source are dropped.
// An empty key disables deduplication for that record.
type KeyFunc[T any] func(item T) string

// MultiSourceIterator composes N iterators in strict ascending priority
// order: source P is exhausted completely before source P+1 is touched.
// First-source-wins deduplication is applied at the emission boundary using
// the set of keys already emitted.
//
// Multi-source iterators are not restartable.
type MultiSourceIterator[T any] struct {
	sources []Iterator[T]
	keyFn   KeyFunc[T]

	current    int
	seen       map[string]struct{}
	duplicates int
	chunkSize  int
	finished   bool
	closed     bool
}

// NewMultiSourceIterator composes the given iterators, which must already be
// ordered by ascending priority_order (highest precedence first). keyFn may
// be nil to disable deduplication.
func NewMultiSourceIterator[T any](sources []Iterator[T], keyFn KeyFunc[T]) *MultiSourceIterator[T] {
	return &MultiSourceIterator[T]{
		sources: sources,
		keyFn:   keyFn,
		seen:    make(map[string]struct{}),
	}
}

// NextChunk returns the next chunk, advancing through sources in priority
// order and suppressing records whose dedup key was already emitted.
func (m *MultiSourceIterator[T]) NextChunk(ctx context.Context, maxItems int) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.closed || m.finished {
		return nil, nil
	}
	if maxItems <= 0 {
		maxItems = 1000
	}
	if m.chunkSize > 0 && m.chunkSize < maxItems {
		maxItems = m.chunkSize
	}

	out := make([]T, 0, maxItems)
	for len(out) < maxItems {
		if m.current >= len(m.sources) {
			m.finished = true
			break
		}

		chunk, err := m.sources[m.current].NextChunk(ctx, maxItems-len(out))
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			// Source exhausted; move to the next priority.
			m.current++
			continue
		}

		for _, item := range chunk {
			if m.keyFn != nil {
				if key := m.keyFn(item); key != "" {
					if _, dup := m.seen[key]; dup {
						m.duplicates++
						continue
					}
					m.seen[key] = struct{}{}
				}
			}
			out = append(out, item)
		}
	}

	if len(out) == 0 {
		m.finished = true
		return nil, nil
	}
	return out, nil
}

// SetBufferSize propagates the advisory chunk size to every source.
func (m *MultiSourceIterator[T]) SetBufferSize(n int) {
	if n > 0 {
		m.chunkSize = n
	}
	for _, s := range m.sources {
		s.SetBufferSize(n)
	}
}

// Close closes every source iterator. Idempotent.
func (m *MultiSourceIterator[T]) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var firstErr error
	for _, s := range m.sources {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reset is not supported: the emitted-key set cannot be rewound consistently
// across sources.
func (m *MultiSourceIterator[T]) Reset() error {
	return ErrResetNotSupported
}

// DroppedDuplicates returns the number of records suppressed by
// first-source-wins deduplication.
func (m *MultiSourceIterator[T]) DroppedDuplicates() int {
	return m.duplicates
}
