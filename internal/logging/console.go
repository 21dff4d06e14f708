package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewConsole returns a human-friendly zerolog logger for the CLI. level is a
// zerolog level name; unknown names fall back to info.
func NewConsole(w io.Writer, level string, noColor bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: noColor}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
