package vectodb

import (
	"errors"
	"fmt"

	"github.com/deepfabric/vectodb/ann"
	"github.com/deepfabric/vectodb/flatstore"
	"github.com/deepfabric/vectodb/metric"
)

// ErrNotTrained is ann.ErrNotTrained: an ann index returns it from Add or
// Search before Train has run, and translateError passes it through
// unchanged. DB.Add never returns it, and DB.Search with no resident index
// answers by an exhaustive scan instead.
var ErrNotTrained = ann.ErrNotTrained

// ErrClosed is returned by any operation on a DB after Close.
var ErrClosed = errors.New("vectodb: database closed")

// IOError wraps a failed syscall-level operation (open, read, write, mmap,
// munmap, truncate, msync).
//
// The original underlying error can be accessed via errors.Unwrap.
type IOError struct {
	Op   string
	Path string

	cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("vectodb: %s %s: %v", e.Op, e.Path, e.cause)
}

func (e *IOError) Unwrap() error { return e.cause }

// FormatError indicates a corrupt or unrecognized on-disk store: a header
// magic mismatch, base.fvecs or base.xids too small for the capacity the
// header records, or a header whose dimension or metric differs from the
// one requested. Open (and Sync's reopen of the compacted store) returns
// it. A corrupt .index artifact is reported as an IOError, not a
// FormatError, and bitmap decoding errors are returned by the bitmap
// package as they are.
//
// The original underlying error can be accessed via errors.Unwrap.
type FormatError struct {
	Detail string

	cause error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("vectodb: format error: %s", e.Detail)
}

func (e *FormatError) Unwrap() error { return e.cause }

// UnsupportedMetricError is returned by Open when the configured metric
// kind is one the k-NN kernel does not implement: a negative kind, a kind
// above metric.Extra, or metric.Extra with no ExtraFunc.
type UnsupportedMetricError struct {
	Kind metric.Kind
}

func (e *UnsupportedMetricError) Error() string {
	return fmt.Sprintf("vectodb: unsupported metric %v", e.Kind)
}

// CapacityExceededError describes a failure to grow the flat store's
// backing files to cover Requested records. No method in this package
// returns it: DB.Add reports a failed growth as an IOError.
//
// The original underlying error can be accessed via errors.Unwrap.
type CapacityExceededError struct {
	Requested uint64

	cause error
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("vectodb: capacity exceeded: could not grow to cover %d records", e.Requested)
}

func (e *CapacityExceededError) Unwrap() error { return e.cause }

// translateError maps an error surfaced by flatstore/ann onto this
// package's taxonomy, preserving the original as the wrapped cause.
// flatstore format and dimension errors become FormatError; ErrNotTrained
// and errors that are already a FormatError pass through unchanged; every
// other error is wrapped as an IOError.
func translateError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, flatstore.ErrFormat) {
		return &FormatError{Detail: err.Error(), cause: err}
	}
	if errors.Is(err, flatstore.ErrDimMismatch) {
		return &FormatError{Detail: err.Error(), cause: err}
	}
	if errors.Is(err, ann.ErrNotTrained) {
		return err
	}
	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	return &IOError{Op: op, Path: path, cause: err}
}
