// Package logging installs the process-wide slog handler at startup:
// a JSON handler by default, or a text handler when KND_LOG_LEVEL is
// "debug" and the output is a terminal, matching how a developer
// running the daemon by hand expects to read it.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/e7canasta/kndd/internal/config"
)

// Init builds a slog.Logger from cfg and installs it as the process
// default. It returns the logger so callers can attach startup-scoped
// attributes without a second lookup.
func Init(cfg config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") || (level == slog.LevelDebug && isTerminal(os.Stdout)) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
