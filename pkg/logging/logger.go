package logging

import (
	"log/slog"
	"os"
)

// Logger is the structured logger shared by every pipeline component.
// JSON to stdout so channel webhooks, workers and admin calls can be
// correlated with a single log search.
type Logger struct {
	*slog.Logger
}

// New creates a logger at the given level; unrecognized levels fall
// back to info.
func New(level string) *Logger {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)

	return &Logger{Logger: logger}
}

// Default returns an info-level logger, used when a component is
// constructed without one.
func Default() *Logger {
	return New("info")
}
