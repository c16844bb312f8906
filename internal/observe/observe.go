// Package observe configures logging for the library and its diagnostics
// tool. Log output carries backend names and masked values only; raw
// secret material never reaches the logger.
package observe

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelVar is the environment variable controlling log verbosity.
const LevelVar = "MLFLOW_SECRETS_AUTH_LOG_LEVEL"

// SetupLogging configures the global zerolog logger. The level comes from
// MLFLOW_SECRETS_AUTH_LOG_LEVEL and defaults to warn, keeping the library
// quiet inside host processes that did not ask for output.
func SetupLogging(console bool) {
	out := io.Writer(os.Stderr)
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	log.Logger = log.Output(out).Level(level(os.Getenv(LevelVar)))
	zerolog.DefaultContextLogger = &log.Logger
}

func level(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning", "":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}
