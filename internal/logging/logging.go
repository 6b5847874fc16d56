// Package logging builds the process-wide zerolog.Logger used across
// cmd/webtab-server and every internal package that reports fetch
// errors.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger at the given level. A bad or empty level string
// falls back to info rather than failing startup. json selects
// structured output for production; otherwise a human-readable console
// writer is used, matching how development logging reads best.
func New(level string, json bool) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	var w zerolog.ConsoleWriter
	if json {
		return zerolog.New(os.Stdout).
			Level(logLevel).
			With().
			Timestamp().
			Logger()
	}

	w = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(w).
		Level(logLevel).
		With().
		Timestamp().
		Logger()
}
