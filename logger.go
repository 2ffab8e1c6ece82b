package bloomfile

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with bloomfile-specific context.
// This provides structured logging with consistent field names.
//
// A Logger is owned by the process that creates it and is handed to filters
// and loaders through options; the package keeps no global logger.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRunID tags every record with a bulk load run ID.
func (l *Logger) WithRunID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run_id", id),
	}
}

// WithPath adds the filter file path.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// WithWorker adds a worker identifier (process ID or goroutine slot).
func (l *Logger) WithWorker(id int) *Logger {
	return &Logger{
		Logger: l.Logger.With("worker", id),
	}
}

// LogCreate logs the creation of a filter file.
func (l *Logger) LogCreate(ctx context.Context, h Header, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create filter failed",
			"m", h.M,
			"k", h.K,
			"hash_func", h.HashFunc.String(),
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "created filter",
		"m", h.M,
		"k", h.K,
		"hash_func", h.HashFunc.String(),
		"offset", h.Offset,
		"size", h.Size,
	)
}

// LogOpen logs opening an existing filter file.
func (l *Logger) LogOpen(ctx context.Context, h Header, readOnly bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open filter failed",
			"read_only", readOnly,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "opened filter",
		"m", h.M,
		"k", h.K,
		"hash_func", h.HashFunc.String(),
		"read_only", readOnly,
	)
}

// LogChunk logs the outcome of one worker chunk.
func (l *Logger) LogChunk(ctx context.Context, chunk, lines, accepted int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "chunk failed, counting zero items",
			"chunk", chunk,
			"lines", lines,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "chunk completed",
		"chunk", chunk,
		"lines", lines,
		"accepted", accepted,
	)
}

// LogProgress logs periodic bulk load throughput along with the number of
// busy worker slots and the chunk bytes still buffered.
func (l *Logger) LogProgress(ctx context.Context, accepted int64, chunks int, elapsed time.Duration, busy int, buffered int64) {
	rate := 0.0
	if elapsed > 0 {
		rate = float64(accepted) / elapsed.Seconds()
	}
	l.InfoContext(ctx, "load progress",
		"accepted", accepted,
		"chunks_done", chunks,
		"lines_per_sec", int64(rate),
		"busy_workers", busy,
		"buffered_bytes", buffered,
	)
}

// LogLoad logs the final outcome of a bulk load.
func (l *Logger) LogLoad(ctx context.Context, res LoadResult, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"accepted", res.Accepted,
			"chunks", res.Chunks,
			"error", err,
		)
		return
	}
	if res.FailedChunks > 0 {
		l.WarnContext(ctx, "load completed with failed chunks",
			"accepted", res.Accepted,
			"lines_read", res.LinesRead,
			"chunks", res.Chunks,
			"failed_chunks", res.FailedChunks,
			"elapsed", res.Elapsed,
		)
		return
	}
	l.InfoContext(ctx, "load completed",
		"accepted", res.Accepted,
		"lines_read", res.LinesRead,
		"chunks", res.Chunks,
		"elapsed", res.Elapsed,
	)
}
