package logging

import (
	"sync"
	"testing"
	"time"
)

func TestLogBufferCircular(t *testing.T) {
	buffer := NewLogBuffer(2)
	buffer.Add(LogEntry{Message: "watch added"})
	buffer.Add(LogEntry{Message: "watch removed"})
	buffer.Add(LogEntry{Message: "watch restarted"})

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "watch removed" {
		t.Fatalf("expected watch removed, got %q", entries[0].Message)
	}
	if entries[1].Message != "watch restarted" {
		t.Fatalf("expected watch restarted, got %q", entries[1].Message)
	}
}

func TestLogBufferEntryLimit(t *testing.T) {
	buffer := NewLogBuffer(3)
	buffer.Add(LogEntry{Message: "one"})
	buffer.Add(LogEntry{Message: "two"})

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "one" {
		t.Fatalf("expected one, got %q", entries[0].Message)
	}
	if entries[1].Message != "two" {
		t.Fatalf("expected two, got %q", entries[1].Message)
	}
}

func TestLogBufferConcurrentAdds(t *testing.T) {
	buffer := NewLogBuffer(50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				buffer.Add(LogEntry{
					Timestamp: time.Now(),
					Message:   "event dispatched",
				})
			}
		}(i)
	}
	wg.Wait()

	entries := buffer.List()
	if len(entries) != 50 {
		t.Fatalf("expected 50 entries, got %d", len(entries))
	}
}

func TestLogBufferRecentFiltersAndLimits(t *testing.T) {
	buffer := NewLogBuffer(10)
	buffer.Add(LogEntry{Level: LevelDebug, Message: "walk started"})
	buffer.Add(LogEntry{Level: LevelWarning, Message: "watch add failed"})
	buffer.Add(LogEntry{Level: LevelInfo, Message: "monitor started"})
	buffer.Add(LogEntry{Level: LevelError, Message: "callback failed"})

	entries := buffer.Recent(2, LevelInfo)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "monitor started" || entries[1].Message != "callback failed" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	if got := len(buffer.Recent(0, LevelDebug)); got != 4 {
		t.Fatalf("expected all 4 entries, got %d", got)
	}
}
