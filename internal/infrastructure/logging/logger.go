package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/runbeat/runbeat-core/internal/infrastructure/config"
)

// Logger wraps slog.Logger so every line carries the service and version
// fields. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from config: JSON or text handler, level filter,
// stdout or stderr. Unrecognised values fall back to JSON, info, stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "runbeat"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel maps a level string to slog.Level, defaulting to info.
// Both "warn" and "warning" are accepted.
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

// With returns a child logger carrying additional default attributes:
//
//	apiLogger := logger.With("component", "api")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default is the bootstrap logger for early startup, before the config
// file has been read. JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
