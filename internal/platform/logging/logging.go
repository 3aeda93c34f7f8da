// Package logging builds the structured loggers handed to service components.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// Format selects the log line encoding.
type Format string

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
	// FormatConsole writes human-readable lines for local use.
	FormatConsole Format = "console"
)

// Config controls logger construction.
type Config struct {
	Level  string `toml:"level" env:"STOCKFOLIO_LOG_LEVEL"`
	Format Format `toml:"format" env:"STOCKFOLIO_LOG_FORMAT"`
}

// New returns a logger writing to w. A nil writer falls back to stderr.
func New(cfg Config, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := log.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		level = log.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	}

	var writer log.Writer
	switch cfg.Format {
	case FormatConsole:
		writer = &log.ConsoleWriter{Writer: w}
	default:
		writer = &log.IOWriter{Writer: w}
	}
	return &log.Logger{
		Level:  level,
		Writer: writer,
	}
}

// Discard returns a logger that drops every entry. Components fall back to
// it when no logger is configured.
func Discard() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

// OrDiscard returns logger, or Discard when logger is nil.
func OrDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}
