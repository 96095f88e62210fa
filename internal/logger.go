package internal

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process-wide logger: human-readable text output in
// development, JSON everywhere else so log pipelines can parse the
// decision and denial fields.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}
	if env == "development" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// parseLogLevel maps a LOG_LEVEL value to a slog level, defaulting to
// info for unknown values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
