package iterator

import (
	"context"
)

// MapFunc transforms one record into zero or one output record.
// Returning keep=false drops the record from the downstream iterator.
// Errors abort the iteration; record-local failures must be handled (counted
// and swallowed) inside the function.
type MapFunc[In, Out any] func(ctx context.Context, item In) (out Out, keep bool, err error)

// MappingIterator applies a one-to-one or one-to-optional transform to every
// record of an upstream iterator. Chunks may shrink when records are dropped;
// the iterator refills from upstream so that non-final chunks stay full.
type MappingIterator[In, Out any] struct {
	upstream Iterator[In]
	fn       MapFunc[In, Out]

	pending  []In
	finished bool
	closed   bool
}

// NewMappingIterator wraps upstream with the given transform.
func NewMappingIterator[In, Out any](upstream Iterator[In], fn MapFunc[In, Out]) *MappingIterator[In, Out] {
	return &MappingIterator[In, Out]{
		upstream: upstream,
		fn:       fn,
	}
}

// NextChunk pulls from upstream and applies the transform until maxItems
// records survive or upstream is exhausted.
func (m *MappingIterator[In, Out]) NextChunk(ctx context.Context, maxItems int) ([]Out, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.closed || m.finished {
		return nil, nil
	}
	if maxItems <= 0 {
		maxItems = 1000
	}

	out := make([]Out, 0, maxItems)
	for len(out) < maxItems {
		if len(m.pending) == 0 {
			chunk, err := m.upstream.NextChunk(ctx, maxItems)
			if err != nil {
				return nil, err
			}
			if chunk == nil {
				m.finished = true
				break
			}
			m.pending = chunk
		}

		item := m.pending[0]
		m.pending = m.pending[1:]

		mapped, keep, err := m.fn(ctx, item)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, mapped)
		}
	}

	if len(out) == 0 {
		m.finished = true
		return nil, nil
	}
	return out, nil
}

// SetBufferSize propagates the advisory chunk size upstream.
func (m *MappingIterator[In, Out]) SetBufferSize(n int) {
	m.upstream.SetBufferSize(n)
}

// Close closes the upstream iterator. Idempotent.
func (m *MappingIterator[In, Out]) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.pending = nil
	return m.upstream.Close()
}

// Reset resets the upstream iterator if it supports restarting.
func (m *MappingIterator[In, Out]) Reset() error {
	if m.closed {
		return ErrResetNotSupported
	}
	if err := m.upstream.Reset(); err != nil {
		return err
	}
	m.pending = nil
	m.finished = false
	return nil
}
