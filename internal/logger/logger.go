// Package logger builds the node's zerolog console logger.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger on stderr. Debug enables debug-level output
// (per-tx rejection logs and similar chatter).
func New(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
