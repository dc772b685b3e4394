// Package logging configures the process-wide zerolog logger used by every
// WaniKani component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-request and per-page events.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs command and server lifecycle events.
	LevelInfo LogLevel = "info"

	// LevelWarn logs HTTP errors and rate limit waits.
	LevelWarn LogLevel = "warn"

	// LevelError logs failures reported to the user.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr so stdout stays free for command output.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup installs the global logger and level and returns the logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a level name onto zerolog. Unknown names mean info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines:
//
// Debug: request dispatch (endpoint, method), every fetched page
// (sequence_id, page, records, has_next), error classification.
//
// Info: vocabulary built, server started or stopped, retry succeeded.
//
// Warn: non-2xx responses, failed page fetches, rate limit waits,
// unreadable rate limit headers, retries exhausted.
//
// Error: missing token, fatal command failures.
//
// Common fields: component, endpoint, status, error_class, sequence_id,
// page, remaining, reset_at.
