// Package logging builds the process-wide zerolog logger from configuration.
// Task 1.2: structured logging. JSON in production, console for local runs.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w at the given level. format is "json" or
// "console"; unknown values fall back to JSON. Unknown levels fall back to
// info rather than failing startup.
func New(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// NewDefault returns the stderr logger used by the binaries.
func NewDefault(level, format string) zerolog.Logger {
	return New(os.Stderr, level, format)
}
