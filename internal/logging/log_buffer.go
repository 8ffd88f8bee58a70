package logging

import (
	"fmt"
	"sync"

	"filemonitor/internal/buffer"

	"github.com/sirupsen/logrus"
)

// LogBuffer keeps the most recent entries in memory. It is installed as a
// logrus hook, so it sees exactly the lines the logger emits.
type LogBuffer struct {
	mu      sync.Mutex
	entries *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{entries: buffer.NewRing[LogEntry](size)}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries.Add(entry)
}

// List returns the buffered entries, oldest first.
func (b *LogBuffer) List() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries.List()
}

// Recent returns up to limit of the newest entries at or above minLevel,
// oldest first. A non-positive limit returns every matching entry.
func (b *LogBuffer) Recent(limit int, minLevel Level) []LogEntry {
	var matched []LogEntry
	for _, entry := range b.List() {
		if LevelAtLeast(entry.Level, minLevel) {
			matched = append(matched, entry)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

func (b *LogBuffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (b *LogBuffer) Fire(entry *logrus.Entry) error {
	var context map[string]string
	if len(entry.Data) > 0 {
		context = make(map[string]string, len(entry.Data))
		for key, value := range entry.Data {
			context[key] = fmt.Sprint(value)
		}
	}
	b.Add(LogEntry{
		Timestamp: entry.Time.UTC(),
		Level:     levelFromLogrus(entry.Level),
		Message:   entry.Message,
		Context:   context,
	})
	return nil
}
