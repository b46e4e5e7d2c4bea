package logging

import (
	"log/slog"
	"os"
)

// New builds the process-wide structured logger. Every host component -
// HTTP handlers, the config reloader, the matcher cache - logs through a
// logger derived from this one via WithGroup.
func New(level slog.Level, src bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource:   src,
		Level:       level,
		ReplaceAttr: nil,
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// FromEnv mirrors the DEBUG_LOGS on/off switch: set it to anything
// non-empty to get debug-level logs with source locations attached.
func FromEnv() *slog.Logger {
	level := slog.LevelInfo
	src := false
	if os.Getenv("DEBUG_LOGS") != "" {
		level = slog.LevelDebug
		src = true
	}
	return New(level, src)
}
