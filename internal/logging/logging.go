// Package logging wires the process-wide zerolog logger. Every component
// constructor takes a zerolog.Logger instead of reaching for the package
// logger, so tests can redirect output and production can add fields
// (symbol, component) per sub-logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. Output is always human-readable console
// format (zerolog.ConsoleWriter), whether or not w is a terminal; there is
// no JSON output mode.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Heartbeat logs a liveness line; call on a ticker no slower than a few
// seconds so a running process is always visibly alive (see error-handling
// design: "a running process always prints a heartbeat line").
func Heartbeat(log *zerolog.Logger, component string, fields map[string]any) {
	ev := log.Info().Str("component", component).Bool("heartbeat", true)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("alive")
}

// Banner logs a high-visibility line for circuit-breaker trips and other
// operator-facing events.
func Banner(log *zerolog.Logger, msg string, fields map[string]any) {
	ev := log.Warn().Bool("banner", true)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
