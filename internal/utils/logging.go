package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// SetupZerolog configures the global logger, an unknown level falls back to debug.
func SetupZerolog(level string, format string) {
	var out io.Writer = os.Stdout
	if format != LogFormatJSON {
		// Set up zerolog with custom output to include milliseconds in the timestamp
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "2006-01-02T15:04:05.000-07:00", // Fake news, BUT we need milliseconds to debug stuff.
		}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	// https://github.com/rs/zerolog/issues/114
	zerolog.TimeFieldFormat = time.RFC3339Nano

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
