// Package logging renders structured log lines through logrus and keeps the
// most recent entries in memory for the HTTP logs endpoint.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultBufferSize = 1000

// Logger writes leveled lines with string fields. Loggers derived with With
// share the output and buffer of their parent.
type Logger struct {
	entry  *logrus.Entry
	buffer *LogBuffer
}

// Options configures a Logger. A nil Output discards rendered lines but the
// buffer still records every entry at or above Level.
type Options struct {
	Buffer *LogBuffer
	Level  Level
	Format Format
	Output io.Writer
}

func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stdout)
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	return NewLoggerWithOptions(Options{
		Buffer: buffer,
		Level:  minLevel,
		Output: output,
	})
}

func NewLoggerWithOptions(options Options) *Logger {
	buffer := options.Buffer
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	output := options.Output
	if output == nil {
		output = io.Discard
	}

	base := logrus.New()
	base.SetOutput(output)
	base.SetLevel(options.Level.logrusLevel())
	if options.Format == FormatJSON {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			DisableColors:    true,
			QuoteEmptyFields: true,
		})
	}
	base.AddHook(buffer)

	return &Logger{entry: logrus.NewEntry(base), buffer: buffer}
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.buffer
}

// With returns a logger that adds fields to every line.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{entry: l.entry.WithFields(toLogrusFields(fields)), buffer: l.buffer}
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return l.entry.Logger.IsLevelEnabled(level.logrusLevel())
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}
	l.entry.WithTime(time.Now().UTC()).WithFields(toLogrusFields(fields)).Log(level.logrusLevel(), message)
}

// ParseLevel accepts debug, info, warn, warning and error in any case.
func ParseLevel(value string) (Level, bool) {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	switch parsed {
	case logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel:
		return levelFromLogrus(parsed), true
	default:
		return "", false
	}
}

func ParseFormat(value string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "text":
		return FormatText, true
	case "json":
		return FormatJSON, true
	default:
		return "", false
	}
}

// LevelAtLeast reports whether level is as severe as minLevel. An empty
// minLevel admits everything.
func LevelAtLeast(level, minLevel Level) bool {
	if minLevel == "" {
		return true
	}
	return level.logrusLevel() <= minLevel.logrusLevel()
}

func toLogrusFields(fields map[string]string) logrus.Fields {
	converted := make(logrus.Fields, len(fields))
	for key, value := range fields {
		converted[key] = value
	}
	return converted
}
