// Package logger builds the process-wide structured logger for the evidence
// service. Log output goes to stderr so command output on stdout stays
// machine-readable.
package logger

import (
	"errors"
	"log/slog"
	"os"
	"strings"
)

// New builds a slog logger from a level ("debug", "info", "warn", "error")
// and a format ("json" or "text") and installs it as the default.
func New(level, format string) (*slog.Logger, error) {
	if strings.TrimSpace(level) == "" || strings.TrimSpace(format) == "" {
		return nil, errors.New("log level and format must not be empty")
	}

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, errors.New("invalid log level: " + level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, errors.New("invalid log format: " + format)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log, nil
}
