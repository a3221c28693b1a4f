// Package logging sets up the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the on-disk log.
const (
	maxLogSizeMB  = 10
	maxLogBackups = 5
)

// Setup builds the agent logger: leveled text output to stdout, or to a
// size-rotated file when path is non-empty. The returned logger is also
// installed as slog's default so library code picks it up.
func Setup(level, path string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var w io.Writer = os.Stdout
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		w = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
		}
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
