// Package logger configures the global zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options holds logger configuration.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, pretty
	File   string // optional log file, rotated
	Out    io.Writer
}

// Init configures the global logger and returns it.
func Init(opts Options) (zerolog.Logger, error) {
	if opts.Level == "" {
		opts.Level = "info"
	}
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var writers []io.Writer
	if opts.Format == "pretty" {
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	} else {
		writers = append(writers, out)
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // MB
			MaxAge:     14, // days
			MaxBackups: 5,
			Compress:   true,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().
		Timestamp().
		Str("service", "paperpulse").
		Logger()
	log.Logger = logger

	log.Debug().
		Str("level", opts.Level).
		Str("format", opts.Format).
		Str("file", opts.File).
		Msg("logger initialized")

	return logger, nil
}
