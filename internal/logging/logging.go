// Package logging builds the process logger: slog lines mirrored to stdout
// and an append-only log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/schaermu/syncbot/internal/config"
)

// Options configures New
type Options struct {
	Level  string
	Format string // text or json
	// File is appended to; empty disables the file sink.
	File string
	// MaxSizeMB > 0 rotates File once it reaches that size.
	MaxSizeMB int
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// FromConfig returns the options described by the log section
func FromConfig(cfg config.LogConfig) Options {
	return Options{
		Level:     cfg.Level,
		Format:    cfg.Format,
		File:      cfg.File,
		MaxSizeMB: cfg.MaxSizeMB,
	}
}

// ParseLevel maps a level name to a slog level, defaulting to info
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

// New creates the logger. The returned closer releases the log file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stdout
	if opts.Stdout != nil {
		out = opts.Stdout
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file, err := openFile(opts.File, opts.MaxSizeMB)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(out, file)
		closer = file
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler), closer, nil
}

func openFile(path string, maxSizeMB int) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSizeMB > 0 {
		return &lumberjack.Logger{
			Filename:  path,
			MaxSize:   maxSizeMB,
			LocalTime: true,
		}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
