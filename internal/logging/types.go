package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Format selects how the logger renders lines on its output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// LogEntry is one buffered log line.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// logrusLevel maps unknown levels to info.
func (level Level) logrusLevel() logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarning:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func levelFromLogrus(level logrus.Level) Level {
	switch {
	case level >= logrus.DebugLevel:
		return LevelDebug
	case level == logrus.InfoLevel:
		return LevelInfo
	case level == logrus.WarnLevel:
		return LevelWarning
	default:
		return LevelError
	}
}
