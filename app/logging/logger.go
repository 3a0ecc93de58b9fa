// Package logging builds the structured application logger
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a JSON slog logger writing to stdout, a rotating file, or both.
// The returned closer flushes and closes the file sink; it is a no-op for stdout.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)

	if cfg.Output == "file" || cfg.Output == "both" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		writers = append(writers, rotator)
		closer = rotator
	}
	if cfg.Output != "file" {
		writers = append(writers, os.Stdout)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})
	return slog.New(handler), closer
}

// ParseLevel maps a config level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Component tags a logger with the subsystem that owns it
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}

// Discard returns a logger that drops everything; handy in tests
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
