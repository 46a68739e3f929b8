// Package logging provides the crash handler's two logging surfaces.
//
// Internal diagnostics go through a log/slog structured logger,
// configured from the stderr severity threshold at startup. Operator
// facing messages go through MultiSink (sink.go), which fans one log
// call out to stderr, syslog, and the open info stream, each gated by
// its own configured threshold.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	// defaultLogger is the process-wide diagnostic logger.
	defaultLogger *slog.Logger
	// loggerMu protects defaultLogger.
	loggerMu sync.RWMutex
)

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Config holds the diagnostic logger's configuration.
type Config struct {
	// Level is the minimum log level.
	Level slog.Level
	// Output is the log output destination.
	Output io.Writer
}

// NewLogger creates a structured diagnostic logger. A crash handler
// writes its own diagnostics to stderr only: the kernel wires stdout
// into nothing useful, and a log file of our own would need the very
// output machinery these diagnostics exist to debug.
func NewLogger(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	return slog.New(slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{
		Level: cfg.Level,
	}))
}

// SetDefault sets the default global logger.
func SetDefault(logger *slog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = logger
}

// Default returns the default global logger.
func Default() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// WithPID returns a logger with the victim process ID attached.
func WithPID(logger *slog.Logger, pid int) *slog.Logger {
	return logger.With(slog.Int("pid", pid))
}

// WithChannel returns a logger with the output-channel name attached
// ("core" or "info").
func WithChannel(logger *slog.Logger, channel string) *slog.Logger {
	return logger.With(slog.String("channel", channel))
}

// WithPath returns a logger with file path context.
func WithPath(logger *slog.Logger, path string) *slog.Logger {
	return logger.With(slog.String("path", path))
}
