// Package logging configures the service's single zerolog sink: a
// Config{Level,Format,Output} producing either a zerolog.ConsoleWriter
// (text, for local/dev use) or raw JSON lines (for production). Components
// that log take their logger at construction — there is no package-level
// global logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the sink's level, format, and output.
type Config struct {
	Level  string // "debug" | "info" | "warn" | "error"
	Format string // "json" | "text"
	Output io.Writer
}

// New builds a zerolog.Logger from cfg. Key hashes and session tokens must
// never appear as fields — callers are responsible for only ever attaching
// non-sensitive values.
func New(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var output io.Writer = cfg.Output
	if strings.EqualFold(cfg.Format, "text") {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	logger = logger.Level(parseLevel(cfg.Level))
	return logger
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
