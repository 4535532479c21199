// Package log owns the process-wide structured logger. Records are JSON so
// the daemon's log file stays machine-readable; the TUI owns stdout, callers
// pass stderr or a file.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu   sync.Mutex
	base *slog.Logger
)

// Setup configures the global logger once. An unknown level falls back to
// INFO; a nil writer falls back to stderr. Later calls are ignored.
func Setup(level string, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		return
	}
	if w == nil {
		w = os.Stderr
	}
	base = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(base)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the configured logger, initializing defaults if Setup was
// never called (tests, library use).
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		base = slog.New(slog.NewJSONHandler(os.Stderr, nil))
		slog.SetDefault(base)
	}
	return base
}

// WithComponent returns a logger scoped to a daemon component.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithPlugin returns a logger scoped to a plugin.
func WithPlugin(name string) *slog.Logger {
	return Get().With(slog.String("plugin", name))
}

// WithCycle returns a logger scoped to one collection cycle.
func WithCycle(id string) *slog.Logger {
	return Get().With(slog.String("cycle_id", id))
}
