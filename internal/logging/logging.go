// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a level name to a zerolog level. Unknown names are info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Configure installs the global logger writing to stderr. format is auto,
// console or json; auto picks console on a terminal.
func Configure(level, format string) {
	ConfigureWriter(os.Stderr, level, format, isatty.IsTerminal(os.Stderr.Fd()))
}

// ConfigureWriter is Configure with an explicit destination.
func ConfigureWriter(out io.Writer, level, format string, terminal bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(ParseLevel(level))

	w := out
	switch strings.ToLower(format) {
	case "json":
	case "console":
		w = consoleWriter(out, !terminal)
	default:
		if terminal {
			w = consoleWriter(out, false)
		}
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

func consoleWriter(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = out
		w.NoColor = noColor
		w.TimeFormat = "15:04:05.000"
	})
}
