// Package observability provides structured logging, metrics and tracing
// for checkpoint store operations.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// NewLogger builds a slog logger writing to w. format is "text" or "json";
// level is one of debug, info, warn, error.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// ParseLevel converts a level name to a slog.Level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

// EnrichLogger adds checkpoint addressing to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "th_123", "", "1f088b35-...")
//	enriched.Info("loaded") // includes thread_id, checkpoint_ns, checkpoint_id
func EnrichLogger(logger *slog.Logger, threadID, namespace, checkpointID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("checkpoint_ns", namespace),
		slog.String("checkpoint_id", checkpointID),
	)
}

// LogPut logs a stored checkpoint.
func LogPut(logger *slog.Logger, threadID, namespace, checkpointID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("thread_id", threadID),
		slog.String("checkpoint_ns", namespace),
		slog.String("checkpoint_id", checkpointID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogWrites logs the outcome of a PutWrites call.
func LogWrites(logger *slog.Logger, checkpointID, taskID string, stored, discarded int) {
	if logger == nil {
		return
	}
	logger.Debug("pending writes saved",
		slog.String("checkpoint_id", checkpointID),
		slog.String("task_id", taskID),
		slog.Int("stored", stored),
		slog.Int("discarded", discarded),
	)
}

// LogWriteDiscarded logs a write dropped because its slot was already taken.
func LogWriteDiscarded(logger *slog.Logger, checkpointID, taskID, channel string, slot int) {
	if logger == nil {
		return
	}
	logger.Debug("pending write discarded",
		slog.String("checkpoint_id", checkpointID),
		slog.String("task_id", taskID),
		slog.String("channel", channel),
		slog.Int("slot", slot),
	)
}

// LogListingError logs a directory listing failure that was treated as empty.
func LogListingError(logger *slog.Logger, dir string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("directory listing failed, treating as empty",
		slog.String("dir", dir),
		slog.String("error", err.Error()),
	)
}

// LogSkippedWriteFile logs a file in a writes folder whose name doesn't decode.
func LogSkippedWriteFile(logger *slog.Logger, dir, name string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("skipping unrecognized write file",
		slog.String("dir", dir),
		slog.String("file", name),
		slog.String("error", err.Error()),
	)
}

// LogThreadDeleted logs thread removal.
func LogThreadDeleted(logger *slog.Logger, threadID string) {
	if logger == nil {
		return
	}
	logger.Info("thread deleted",
		slog.String("thread_id", threadID),
	)
}

// LogOperationError logs a failed store operation.
func LogOperationError(logger *slog.Logger, op, threadID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("checkpoint operation failed",
		slog.String("operation", op),
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
