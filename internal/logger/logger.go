package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger. Development gets a human console
// writer, everything else emits JSON lines.
func New(env string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if env == "development" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		logger = zerolog.New(output)
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.With().
		Timestamp().
		Str("service", "radar-ingest").
		Logger()
}
