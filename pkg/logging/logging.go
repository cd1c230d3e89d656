// Package logging provides the process-wide zerolog logger for shopsight.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger *zerolog.Logger

func init() {
	// JSON at info level until Init is called.
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Options configures the global logger.
type Options struct {
	// Level is a zerolog level name ("debug", "info", "warn", ...).
	// Unknown or empty values fall back to info.
	Level string
	// Human switches to a console writer instead of JSON.
	Human bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Init configures the global logger and returns it.
func Init(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Human {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).Level(level).With().Timestamp().Logger()
	logger = &l
	return l
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns a logger with the phase field set.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger overrides the global logger (useful for testing).
func SetLogger(l zerolog.Logger) {
	logger = &l
}
