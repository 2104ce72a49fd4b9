package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/m3u-proxy/internal/pipeline/accumulator"
)

// Pipeline errors.
var (
	// ErrProxyNotFound indicates the requested proxy does not exist.
	ErrProxyNotFound = errors.New("proxy not found")

	// ErrProxyInactive indicates the proxy is disabled.
	ErrProxyInactive = errors.New("proxy is not active")

	// ErrPipelineAlreadyRunning indicates a pipeline is already executing for this proxy.
	ErrPipelineAlreadyRunning = errors.New("pipeline already running for this proxy")

	// ErrMemoryExhausted indicates Emergency pressure with no ability to spill.
	ErrMemoryExhausted = errors.New("memory exhausted: unable to spill")

	// ErrOutputEncoding indicates a bug in output generation; no partial
	// output is returned.
	ErrOutputEncoding = errors.New("output encoding failed")
)

// ErrorClass classifies an error for the stage failure model.
type ErrorClass int

// Error classes.
const (
	// ClassTransient errors are retried with exponential backoff before
	// escalating to fatal.
	ClassTransient ErrorClass = iota
	// ClassRecordLocal errors are logged, counted, and the offending record
	// dropped; the generation continues.
	ClassRecordLocal
	// ClassFatal errors abort the generation; partial outputs are discarded.
	ClassFatal
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRecordLocal:
		return "record_local"
	default:
		return "fatal"
	}
}

// TransientError marks an error as retryable (upstream reads, timeouts on
// individual calls).
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as transient.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// RecordError marks a record-local failure (malformed record, mapping apply
// failure). Record errors never fail a generation.
type RecordError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// Classify maps an error to its class. Cancellation is not an error
// semantically and classifies as fatal to stop the run; callers distinguish
// it via errors.Is(err, context.Canceled).
func Classify(err error) ErrorClass {
	var transient *TransientError
	if errors.As(err, &transient) {
		return ClassTransient
	}
	var record *RecordError
	if errors.As(err, &record) {
		return ClassRecordLocal
	}
	return ClassFatal
}

// IsCancellation reports whether the error is a cancellation rather than a
// failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsDeadline reports whether the error is a deadline expiry.
func IsDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// IsSpillFailure reports whether the error chain contains a failed spill
// write. Spill failures are fatal; the sandbox is cleaned.
func IsSpillFailure(err error) bool {
	var spill *accumulator.SpillError
	return errors.As(err, &spill)
}

// StageError wraps an error with stage context.
type StageError struct {
	StageID   string
	StageName string
	Err       error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.StageName, e.StageID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stageID, stageName string, err error) *StageError {
	return &StageError{
		StageID:   stageID,
		StageName: stageName,
		Err:       err,
	}
}
