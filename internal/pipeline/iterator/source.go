package iterator

import (
	"context"

	"github.com/jmylchreest/m3u-proxy/internal/models"
)

// PageFunc fetches one page of records for a source. The cursor is the ID of
// the last record of the previous page (zero for the first page); pagination
// must be stable across calls within one generation. Implementations return
// the page and the cursor for the next call.
type PageFunc[T any] func(ctx context.Context, sourceID models.ULID, after models.ULID, limit int) ([]T, models.ULID, error)

// SourceIterator is a paginated database read over one source, ordered by the
// database natural order (ascending primary key). It holds its cursor for the
// life of the iteration and is restartable.
type SourceIterator[T any] struct {
	sourceID models.ULID
	fetch    PageFunc[T]

	cursor   models.ULID
	pageSize int
	finished bool
	closed   bool
}

// NewSourceIterator creates an iterator over the records of one source.
func NewSourceIterator[T any](sourceID models.ULID, fetch PageFunc[T]) *SourceIterator[T] {
	return &SourceIterator[T]{
		sourceID: sourceID,
		fetch:    fetch,
	}
}

// NextChunk fetches the next page of at most maxItems records.
func (s *SourceIterator[T]) NextChunk(ctx context.Context, maxItems int) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed || s.finished {
		return nil, nil
	}
	if maxItems <= 0 {
		maxItems = 1000
	}
	if s.pageSize > 0 && s.pageSize < maxItems {
		maxItems = s.pageSize
	}

	page, next, err := s.fetch(ctx, s.sourceID, s.cursor, maxItems)
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		s.finished = true
		return nil, nil
	}
	s.cursor = next
	return page, nil
}

// SetBufferSize caps the page size fetched per chunk.
func (s *SourceIterator[T]) SetBufferSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// Close releases the iterator. Idempotent.
func (s *SourceIterator[T]) Close() error {
	s.closed = true
	return nil
}

// Reset rewinds the cursor to the start of the source.
func (s *SourceIterator[T]) Reset() error {
	if s.closed {
		return ErrResetNotSupported
	}
	s.cursor = models.ULID{}
	s.finished = false
	return nil
}
