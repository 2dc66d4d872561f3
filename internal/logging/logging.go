// Package logging builds the process slog.Logger.
//
// Records are JSON on stderr and, when a file is configured, also written
// to a size-rotated file. Stdout carries quote events only.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rickgao/quotefeed/internal/config"
)

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// New creates a logger for cfg. The returned closer releases the rotating
// file, if any.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit console writer.
func NewWithWriter(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	w := console

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err == nil {
			fileLogger := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   true,
			}
			w = io.MultiWriter(console, fileLogger)
			closer = fileLogger
		}
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	return slog.New(slog.NewJSONHandler(w, opts)), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
