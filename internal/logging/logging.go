// Package logging builds the zerolog logger shared by the CLI and pipeline.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// File, when set, receives JSON lines through a rotating writer.
	File string
	// Console is the human-readable sink, usually os.Stderr. Nil disables it.
	Console io.Writer
	// NoColor disables ANSI colours on the console writer.
	NoColor bool
}

// New returns a logger writing to the console and optionally a rotating file.
// The returned closer must be called to flush the file writer.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	var writers []io.Writer
	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        opts.Console,
			TimeFormat: time.TimeOnly,
			NoColor:    opts.NoColor,
		})
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	if len(writers) == 0 {
		return zerolog.Nop(), closer, nil
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closer, nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(name)
}

// Component returns a sub-logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
