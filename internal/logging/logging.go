package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger. JSON if BRIDGE_JSON_LOG=1/true/json
// else text; level from BRIDGE_LOG_LEVEL.
func Init(service string) *slog.Logger {
	return initTo(os.Stdout, service)
}

func initTo(w io.Writer, service string) *slog.Logger {
	json := jsonEnabled()
	opts := &slog.HandlerOptions{Level: levelFromEnv()}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Debug("logging initialized", "json", json)
	return logger
}

func jsonEnabled() bool {
	switch strings.ToLower(os.Getenv("BRIDGE_JSON_LOG")) {
	case "1", "true", "json":
		return true
	}
	return false
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("BRIDGE_LOG_LEVEL")) {
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
