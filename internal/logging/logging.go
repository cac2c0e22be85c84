// Package logging configures the global zerolog logger for zerobrew.
// Engine packages log structured events through zerolog's package-level
// logger; human-facing output stays in the CLI layer.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLevel selects the log level ("debug", "info", "warn", "error").
const EnvLevel = "ZEROBREW_LOG"

// Setup initializes the global logger. Levels come from ZEROBREW_LOG and
// default to warn so the engine stays quiet under normal CLI use.
func Setup() {
	level := zerolog.WarnLevel
	switch strings.ToLower(os.Getenv(EnvLevel)) {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	case "trace":
		level = zerolog.TraceLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
	}
	log.Logger = zerolog.New(console).With().Timestamp().Logger()
}
