// Package logging provides structured logging for the relay.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string // "json" or "console"
	Output io.Writer
}

// Logger wraps zerolog.Logger with additional context.
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(cfg LogConfig) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	if cfg.Output != nil {
		output = cfg.Output
	} else {
		output = os.Stdout
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "wg-bridge").
		Logger()

	return &Logger{Logger: logger}
}

// WithComponent returns a logger with component context.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// WithSession returns a logger annotated with a session index.
func (l *Logger) WithSession(idx fmt.Stringer) *Logger {
	return &Logger{
		Logger: l.With().Str("session", idx.String()).Logger(),
	}
}

// WithKey returns a logger annotated with the base64 public key that
// matched a handshake MAC.
func (l *Logger) WithKey(key string) *Logger {
	return &Logger{
		Logger: l.With().Str("key", key).Logger(),
	}
}
