// Package logging provides the process-wide zerolog logger for cdxsum and
// helpers for consistent completion events.
package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger *zerolog.Logger
	pretty atomic.Bool
)

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger. Logs always go to stderr; stdout is
// reserved for summary output.
func Init(debug bool, human bool) {
	InitWriter(os.Stderr, debug, human)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, debug bool, human bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var output zerolog.LevelWriter
	if human {
		output = zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}}
	} else {
		output = zerolog.LevelWriterAdapter{Writer: w}
	}

	l := zerolog.New(output).With().Timestamp().Logger()
	logger = &l
	pretty.Store(human)
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns a logger with the phase field set.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger overrides the global logger.
func SetLogger(l zerolog.Logger) {
	logger = &l
}

// IsPrettyMode reports whether human-readable companion fields
// (size_h, duration_h, ...) are added to events.
func IsPrettyMode() bool {
	return pretty.Load()
}

// SetPrettyMode toggles human-readable companion fields.
func SetPrettyMode(on bool) {
	pretty.Store(on)
}
