// Package log constructs the application-wide zerolog logger.
package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so callers can use it directly.
type Logger struct {
	zerolog.Logger
}

// New builds a logger writing to stdout at the given level.
// Unknown levels fall back to info. Pretty enables the console writer.
func New(level string, pretty bool) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(os.Stdout)
	if pretty {
		logger = zerolog.New(out)
	}

	logger = logger.Level(lvl).With().Timestamp().Logger()
	return &Logger{Logger: logger}
}
