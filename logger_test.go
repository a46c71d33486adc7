package vectodb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAdd_SuccessAndFailure(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l.LogAdd(context.Background(), 3, nil)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "add completed", rec["msg"])
	assert.EqualValues(t, 3, rec["count"])

	buf.Reset()
	l.LogAdd(context.Background(), 1, errors.New("boom"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "add failed", rec["msg"])
}

func TestLogSync_RetrainedVsUnchanged(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l.LogSync(context.Background(), 100, 100, true, nil)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "sync retrained index", rec["msg"])

	buf.Reset()
	l.LogSync(context.Background(), 100, 0, false, nil)
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "sync re-exported index unchanged", rec["msg"])
}

func TestNoopLogger_DiscardsOutput(t *testing.T) {
	l := NoopLogger()
	assert.NotPanics(t, func() {
		l.LogAdd(context.Background(), 1, nil)
		l.LogSearch(context.Background(), 1, 10, nil)
	})
}

func TestWithDir_AddsFieldToSubsequentRecords(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).WithDir("/tmp/db")
	l.LogRemove(context.Background(), 2, 1, nil)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "/tmp/db", rec["dir"])
}
