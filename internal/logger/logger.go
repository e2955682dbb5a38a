// Package logger builds the process logger: leveled, structured output on
// stderr, optionally mirrored to a size-rotated file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level      string `toml:"level"` // debug, info, warn, error
	File       string `toml:"file"`  // Empty disables the file sink
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	JSON       bool   `toml:"json"`
}

// DefaultConfig logs info and above to stderr only.
func DefaultConfig() Config {
	return Config{Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28}
}

// New returns a logger for cfg. The returned closer flushes and closes the
// file sink and is never nil.
func New(cfg Config, stderr io.Writer) (*log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if cfg.Level == "" {
		level, err = log.InfoLevel, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	var w io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(stderr, file)
		closer = file
	}

	opts := log.Options{
		ReportTimestamp: true,
		ReportCaller:    level == log.DebugLevel,
		Level:           level,
		Prefix:          "wellspring",
	}
	if cfg.JSON {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, opts), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
