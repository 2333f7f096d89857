// internal/core/logging/logging.go
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/localscan/scanhost/internal/core/paths"
)

var (
	slogLogger *slog.Logger
	once       sync.Once
)

// ParseLevel converts a string like "DEBUG" to slog.Level.
// Supports TRACE (mapped to DEBUG), DEBUG, INFO, WARN, ERROR.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromEnv returns the level from WHOSTHERE_LOG, falling back to
// WHOSTHERE_DEBUG=1 (mapped to debug) and finally defaultLevel.
func LevelFromEnv(defaultLevel slog.Level) slog.Level {
	if v := os.Getenv("WHOSTHERE_LOG"); v != "" {
		return ParseLevel(v)
	}
	if v := os.Getenv("WHOSTHERE_DEBUG"); v != "" && v != "0" {
		return slog.LevelDebug
	}
	return defaultLevel
}

// L returns the process-wide logger, or slog.Default() before New has run.
func L() *slog.Logger {
	if slogLogger == nil {
		return slog.Default()
	}
	return slogLogger
}

// New sets up a new slog logger instance
func New(enableStdout bool) (*slog.Logger, error) {
	var initErr error
	once.Do(func() {
		path, err := resolveLogPath()
		if err != nil {
			initErr = err
			return
		}

		level := LevelFromEnv(slog.LevelInfo)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			initErr = fmt.Errorf("open log file: %w", err)
			return
		}

		var w io.Writer = f
		if enableStdout {
			w = io.MultiWriter(f, os.Stdout)
		}

		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
		slogLogger = slog.New(h)
		slog.SetDefault(slogLogger)
	})

	return slogLogger, initErr
}

func resolveLogPath() (string, error) {
	dir, err := paths.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "app.log"), nil
}
