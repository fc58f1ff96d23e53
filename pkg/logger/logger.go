// Package logger provides structured logging for the bounty engine. It wraps
// zerolog behind a small chainable API so services never depend on the
// backend directly.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LoggingConfig controls the logger backend.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
	Output string // "stdout", "stderr" or a file path
}

// Logger is a structured logger with accumulated fields.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger from configuration.
func New(cfg LoggingConfig) *Logger {
	var out io.Writer
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			out = os.Stdout
		} else {
			out = f
		}
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewDefault creates an info-level JSON logger tagged with a component name.
func NewDefault(component string) *Logger {
	l := New(LoggingConfig{})
	return l.WithField("component", component)
}

// WithField returns a logger with an additional field attached.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.zl.Info().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msg(fmt.Sprintf(format, args...)) }
