package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the process-wide structured logger and installs it as the slog
// default so package-level slog calls share the same handler.
func New(env, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})).With(
		slog.String("app", "attendance-sync"),
		slog.String("env", env),
	)
	slog.SetDefault(logger)
	return logger
}
