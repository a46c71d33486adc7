package vectodb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deepfabric/vectodb/flatstore"
)

func TestIOError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("disk full")
	err := &IOError{Op: "write", Path: "/tmp/x", cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "write")
	assert.Contains(t, err.Error(), "/tmp/x")
}

func TestFormatError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("bad magic")
	err := &FormatError{Detail: "bad magic", cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "bad magic")
}

func TestUnsupportedMetricError_Message(t *testing.T) {
	err := &UnsupportedMetricError{}
	assert.Contains(t, err.Error(), "unsupported metric")
}

func TestCapacityExceededError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("mmap failed")
	err := &CapacityExceededError{Requested: 1000, cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "1000")
}

func TestTranslateError_NilPassesThrough(t *testing.T) {
	assert.NoError(t, translateError("op", "path", nil))
}

func TestTranslateError_FlatstoreFormatBecomesFormatError(t *testing.T) {
	err := translateError("open", "dir", flatstore.ErrFormat)
	var fe *FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestTranslateError_FlatstoreDimMismatchBecomesFormatError(t *testing.T) {
	err := translateError("open", "dir", flatstore.ErrDimMismatch)
	var fe *FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestTranslateError_NotTrainedPassesThrough(t *testing.T) {
	err := translateError("search", "dir", ErrNotTrained)
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestTranslateError_UnrecognizedBecomesIOError(t *testing.T) {
	err := translateError("read", "dir", errors.New("boom"))
	var ioe *IOError
	assert.ErrorAs(t, err, &ioe)
}
