// Package accumulator bridges a consuming iterator into a reusable immutable
// snapshot. Three strategies are selectable per call: in-memory, spill-only,
// and hybrid (in-memory until a threshold, then spill). Spill files are
// JSON-lines sequences owned by the accumulator and deleted on finalization
// or close, whichever comes first.
package accumulator

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"

	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/observability"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/snapshot"
)

// Estimated per-record memory footprints used to decide when to spill.
const (
	// EstimatedChannelBytes is the estimated in-memory size of a channel record.
	EstimatedChannelBytes = 2048
	// EstimatedProgramBytes is the estimated in-memory size of a program record.
	EstimatedProgramBytes = 1024
	// EstimatedRuleBytes is the estimated in-memory size of a rule record.
	EstimatedRuleBytes = 512
)

// ErrTerminal is returned by Append after the accumulator entered a terminal
// error state or was finalized.
var ErrTerminal = errors.New("accumulator: terminal state, no further appends")

// ErrInMemoryRefused is returned when an in-memory accumulator is requested
// under Emergency memory pressure.
var ErrInMemoryRefused = errors.New("accumulator: in-memory accumulation refused under emergency pressure")

// SpillError reports a failed spill write with the offending path.
type SpillError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *SpillError) Error() string {
	return fmt.Sprintf("accumulator: spill to %s failed: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpillError) Unwrap() error {
	return e.Err
}

// Options configures an Accumulator.
type Options struct {
	// Strategy selects the accumulation behavior. Default: hybrid.
	Strategy memory.AccumulatorStrategy
	// Dir is the directory for spill files (the per-generation sandbox).
	Dir string
	// Name prefixes spill file names.
	Name string
	// SpillThreshold is the estimated in-memory size that triggers a spill in
	// the hybrid strategy. Default: 50MB.
	SpillThreshold int64
	// RecordsPerFile bounds each spill file. Default: 10000.
	RecordsPerFile int
	// EstimatedItemBytes is the per-record estimate. Default: 256.
	EstimatedItemBytes int
	// Compress enables brotli compression of spill files.
	Compress bool
	// Governor, when set, is consulted to refuse in-memory accumulation
	// under Emergency pressure.
	Governor *memory.Governor
}

// Accumulator collects records of one type and finalizes them into an
// immutable snapshot. Single-owner; not safe for concurrent use.
type Accumulator[T any] struct {
	opts Options

	items          []T
	spilled        bool
	spillFiles     []string
	fileRecords    int
	current        *os.File
	currentWriter  io.Writer
	currentCloser  io.Closer
	count          int
	estimatedBytes int64
	spillEvents    int

	terminalErr error
	finalized   bool
}

// New creates an accumulator with the given options.
func New[T any](opts Options) (*Accumulator[T], error) {
	if opts.Strategy == "" {
		opts.Strategy = memory.StrategyHybrid
	}
	if opts.SpillThreshold <= 0 {
		opts.SpillThreshold = 50 * 1024 * 1024
	}
	if opts.RecordsPerFile <= 0 {
		opts.RecordsPerFile = 10000
	}
	if opts.EstimatedItemBytes <= 0 {
		opts.EstimatedItemBytes = 256
	}
	if opts.Name == "" {
		opts.Name = "accumulator"
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}

	if opts.Strategy == memory.StrategyInMemory && opts.Governor != nil &&
		opts.Governor.Level() >= memory.PressureEmergency {
		return nil, ErrInMemoryRefused
	}

	return &Accumulator[T]{opts: opts}, nil
}

// Append adds records to the accumulator.
func (a *Accumulator[T]) Append(items ...T) error {
	if a.terminalErr != nil {
		return a.terminalErr
	}
	if a.finalized {
		return ErrTerminal
	}

	switch a.opts.Strategy {
	case memory.StrategySpillOnly:
		return a.appendToDisk(items)
	case memory.StrategyInMemory:
		a.items = append(a.items, items...)
		a.track(len(items))
		return nil
	default: // hybrid
		if a.spilled {
			return a.appendToDisk(items)
		}
		a.items = append(a.items, items...)
		a.track(len(items))
		if a.estimatedBytes >= a.opts.SpillThreshold {
			if err := a.flushToDisk(); err != nil {
				return err
			}
		}
		return nil
	}
}

// track updates the count and memory estimate.
func (a *Accumulator[T]) track(n int) {
	a.count += n
	a.estimatedBytes += int64(n) * int64(a.opts.EstimatedItemBytes)
}

// Len returns the number of accumulated records.
func (a *Accumulator[T]) Len() int {
	return a.count
}

// EstimatedBytes returns the running in-memory size estimate.
func (a *Accumulator[T]) EstimatedBytes() int64 {
	if a.spilled {
		return 0
	}
	return a.estimatedBytes
}

// Spilled reports whether any records live on disk.
func (a *Accumulator[T]) Spilled() bool {
	return a.spilled || len(a.spillFiles) > 0
}

// SpillEvents returns the number of spill file rollovers.
func (a *Accumulator[T]) SpillEvents() int {
	return a.spillEvents
}

// flushToDisk moves all in-memory records into spill files and switches the
// hybrid accumulator into spilling mode.
func (a *Accumulator[T]) flushToDisk() error {
	buffered := a.items
	a.items = nil
	a.estimatedBytes = 0
	a.count -= len(buffered)
	a.spilled = true
	return a.appendToDisk(buffered)
}

// appendToDisk writes records to the current spill file, rolling over at
// RecordsPerFile.
func (a *Accumulator[T]) appendToDisk(items []T) error {
	a.spilled = true
	for i := range items {
		if a.current == nil || a.fileRecords >= a.opts.RecordsPerFile {
			if err := a.rollover(); err != nil {
				return err
			}
		}
		data, err := json.Marshal(&items[i])
		if err != nil {
			a.fail(&SpillError{Path: a.current.Name(), Err: err})
			return a.terminalErr
		}
		data = append(data, '\n')
		if _, err := a.currentWriter.Write(data); err != nil {
			a.fail(&SpillError{Path: a.current.Name(), Err: err})
			return a.terminalErr
		}
		a.fileRecords++
		a.count++
	}
	return nil
}

// rollover closes the current spill file and opens the next in sequence.
func (a *Accumulator[T]) rollover() error {
	if err := a.closeCurrent(); err != nil {
		a.fail(err)
		return a.terminalErr
	}

	ext := ".jsonl"
	if a.opts.Compress {
		ext = ".jsonl.br"
	}
	path := filepath.Join(a.opts.Dir, fmt.Sprintf("%s-%05d%s", a.opts.Name, len(a.spillFiles), ext))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		a.fail(&SpillError{Path: path, Err: err})
		return a.terminalErr
	}

	a.current = f
	a.fileRecords = 0
	a.spillFiles = append(a.spillFiles, path)
	a.spillEvents++
	observability.SpillEvents.Inc()

	if a.opts.Compress {
		bw := brotli.NewWriter(f)
		a.currentWriter = bw
		a.currentCloser = bw
	} else {
		buf := bufio.NewWriter(f)
		a.currentWriter = buf
		a.currentCloser = flusherCloser{buf}
	}
	return nil
}

// closeCurrent flushes and closes the open spill file, if any.
func (a *Accumulator[T]) closeCurrent() error {
	if a.current == nil {
		return nil
	}
	path := a.current.Name()
	if a.currentCloser != nil {
		if err := a.currentCloser.Close(); err != nil {
			a.current.Close()
			a.current = nil
			return &SpillError{Path: path, Err: err}
		}
	}
	if err := a.current.Close(); err != nil {
		a.current = nil
		return &SpillError{Path: path, Err: err}
	}
	a.current = nil
	a.currentWriter = nil
	a.currentCloser = nil
	return nil
}

// fail transitions the accumulator into a terminal error state and removes
// its spill files.
func (a *Accumulator[T]) fail(err error) {
	a.terminalErr = err
	if a.current != nil {
		a.current.Close()
		a.current = nil
	}
	a.removeSpillFiles()
}

// removeSpillFiles deletes every spill file owned by the accumulator.
func (a *Accumulator[T]) removeSpillFiles() {
	for _, path := range a.spillFiles {
		os.Remove(path)
	}
	a.spillFiles = nil
}

// IntoSnapshot consumes the accumulator: spill files are read back in
// insertion order, concatenated with the in-memory tail, and the result is
// frozen into an immutable snapshot. Spill files are deleted afterwards.
func (a *Accumulator[T]) IntoSnapshot(description string) (*snapshot.Snapshot[T], error) {
	if a.terminalErr != nil {
		return nil, a.terminalErr
	}
	if a.finalized {
		return nil, ErrTerminal
	}
	a.finalized = true

	if err := a.closeCurrent(); err != nil {
		a.fail(err)
		return nil, a.terminalErr
	}

	items := make([]T, 0, a.count)
	for _, path := range a.spillFiles {
		if err := a.readSpillFile(path, &items); err != nil {
			a.fail(err)
			return nil, a.terminalErr
		}
	}
	items = append(items, a.items...)
	a.items = nil
	a.removeSpillFiles()

	return snapshot.New(items, description), nil
}

// readSpillFile decodes one JSON-lines spill file into out.
func (a *Accumulator[T]) readSpillFile(path string, out *[]T) error {
	f, err := os.Open(path)
	if err != nil {
		return &SpillError{Path: path, Err: err}
	}
	defer f.Close()

	var r io.Reader = f
	if a.opts.Compress {
		r = brotli.NewReader(f)
	}

	dec := json.NewDecoder(bufio.NewReader(r))
	for {
		var item T
		if err := dec.Decode(&item); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &SpillError{Path: path, Err: err}
		}
		*out = append(*out, item)
	}
}

// Close releases the accumulator and deletes any remaining spill files.
// Idempotent; safe to call after IntoSnapshot.
func (a *Accumulator[T]) Close() error {
	if !a.finalized {
		a.finalized = true
	}
	err := a.closeCurrent()
	a.removeSpillFiles()
	a.items = nil
	return err
}

// flusherCloser adapts a bufio.Writer to io.Closer.
type flusherCloser struct {
	w *bufio.Writer
}

// Close flushes the buffered writer.
func (f flusherCloser) Close() error {
	return f.w.Flush()
}
