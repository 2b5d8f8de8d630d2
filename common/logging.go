package common

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Version is set at build time with -ldflags "-X ...common.Version=...".
var Version = "dev"

// LoggingOpts controls logger construction.
type LoggingOpts struct {
	Debug   bool
	JSON    bool
	Service string
	Version string

	// File is the path of the rotating log file. When empty, Output is used.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Output is the sink used when File is empty. Never point it at stderr:
	// stderr carries the status token.
	Output io.Writer
}

// SetupLogger builds the process logger. The returned closer flushes and
// closes the file sink, if any.
func SetupLogger(opts *LoggingOpts) (*slog.Logger, io.Closer, error) {
	var out io.Writer = io.Discard
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
			return nil, nil, fmt.Errorf("could not create log directory: %w", err)
		}
		// lumberjack opens lazily, probe the file now so setup failures surface here.
		f, err := os.OpenFile(opts.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open log file: %w", err)
		}
		f.Close()

		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		out, closer = rotating, rotating
	} else if opts.Output != nil {
		if opts.Output == os.Stderr {
			return nil, nil, errors.New("refusing to log to stderr")
		}
		out = opts.Output
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
