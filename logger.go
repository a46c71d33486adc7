package vectodb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vectodb-specific helpers for the
// coordinator's mutating operations.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. If handler is nil, a
// text handler writing to stderr at info level is used.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NewJSONLogger creates a Logger that writes JSON-formatted records to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(1000)}))}
}

// WithDir adds the working directory as a field on every subsequent record.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{Logger: l.Logger.With("dir", dir)}
}

// LogAdd logs an Add call.
func (l *Logger) LogAdd(ctx context.Context, n int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed", "count", n, "error", err)
		return
	}
	l.DebugContext(ctx, "add completed", "count", n)
}

// LogRemove logs a Remove call.
func (l *Logger) LogRemove(ctx context.Context, requested, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "remove failed", "requested", requested, "error", err)
		return
	}
	l.DebugContext(ctx, "remove completed", "requested", requested, "removed", removed)
}

// LogSearch logs a Search call.
func (l *Logger) LogSearch(ctx context.Context, nq, k int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed", "queries", nq, "k", k, "error", err)
		return
	}
	l.DebugContext(ctx, "search completed", "queries", nq, "k", k)
}

// LogSync logs a Sync call.
func (l *Logger) LogSync(ctx context.Context, ntotal, ntrain int, retrained bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sync failed", "ntotal", ntotal, "error", err)
		return
	}
	if retrained {
		l.InfoContext(ctx, "sync retrained index", "ntotal", ntotal, "ntrain", ntrain)
		return
	}
	l.InfoContext(ctx, "sync re-exported index unchanged", "ntotal", ntotal)
}
