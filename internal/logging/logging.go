package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/me/nightsched/pkg/model"
)

// AnomalyKey is the attribute that marks recoverable scheduling anomalies so
// they can be filtered out of a log stream.
const AnomalyKey = "anomaly"

// NewLogger creates a logger writing to stderr; stdout is reserved for
// timeline displays.
//
// format is "text" (human-readable, the default) or "json".
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to w. Below INFO, records
// carry their source location.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level < slog.LevelInfo,
	}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ForNight scopes a logger to one (night, site) run.
func ForNight(logger *slog.Logger, night model.NightIndex, site model.Site) *slog.Logger {
	return logger.With("night", int(night), "site", string(site))
}

// ParseLevel converts a level name to slog.Level. Besides debug, info,
// warn/warning and error it accepts slog's own offsets such as "debug-4"
// or "warn+2". Anything else is INFO.
func ParseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
