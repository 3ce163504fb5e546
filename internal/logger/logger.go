// Package logger sets up structured logging with log/slog. Components
// keep using log.Printf for hot-path traces; slog carries the startup,
// settlement and error records that dashboards ingest.
package logger

import (
	"log/slog"
	"os"
)

// Init creates a JSON logger for the given service and trading mode and
// installs it as the slog default.
func Init(service, mode string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
		slog.String("mode", mode),
	)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
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
