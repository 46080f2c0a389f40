// Package util provides shared utilities: structured logging setup, a
// bounded-retry helper for idempotent sink writes, a token-bucket rate
// limiter for API pacing, and the Taiwan futures market calendar.
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a structured slog logger writing to w. Level is one of
// "debug", "info", "warn", "error" (default "info"); format is "json" or
// "text" (default "text").
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var slevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slevel = slog.LevelDebug
	case "info":
		slevel = slog.LevelInfo
	case "warn":
		slevel = slog.LevelWarn
	case "error":
		slevel = slog.LevelError
	default:
		slevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: slevel}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewDefaultLogger builds a logger on stdout and installs it as the slog
// default.
func NewDefaultLogger(level, format string) *slog.Logger {
	logger := NewLogger(os.Stdout, level, format)
	slog.SetDefault(logger)
	return logger
}
