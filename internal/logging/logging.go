// Package logging provides a thin wrapper around zerolog so that the rest of
// the codebase does not depend on a concrete logging library. Components
// receive a *Logger; the zero value logs nothing.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	FormatText = iota
	FormatJSON
)

type Config struct {
	Level  int
	Format int
	Output io.Writer
}

type Logger struct {
	logger zerolog.Logger
}

func NewLogger(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	if config.Format == FormatText {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).Level(level(config.Level)).With().Timestamp().Logger()
	return &Logger{logger: logger}
}

// Discard returns a logger that drops everything. Useful as a test default.
func Discard() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{logger: l.logger.With().Fields(fields).Logger()}
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.logger.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.logger.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.logger.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.logger.Error().Msgf(format, args...)
}

func level(l int) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
