package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs a text logger on stderr as the slog default. LOG_LEVEL
// overrides fallback, which is error for the client and info for the relay.
func Init(fallback slog.Level) *slog.Logger {
	logger := New(os.Stderr, Level(fallback))
	slog.SetDefault(logger)
	return logger
}

// New builds a text logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	)
}

// Level resolves LOG_LEVEL, falling back when it is unset or unknown.
func Level(fallback slog.Level) slog.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return fallback
	}
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
