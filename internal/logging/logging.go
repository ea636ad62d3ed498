package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.Mutex
	logger *slog.Logger
)

// Setup configures the process-wide logger. Level is taken from
// STENCILA_LOG_LEVEL (debug|info|warn|error), defaulting to info.
// Logs go to stderr so stdout stays clean for command output.
func Setup(w io.Writer) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: levelFromEnv(),
	}))
	slog.SetDefault(logger)
	return logger
}

// Get returns the process logger, initializing it on first use.
func Get() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l != nil {
		return l
	}
	return Setup(os.Stderr)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("STENCILA_LOG_LEVEL"))) {
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
