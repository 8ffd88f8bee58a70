package watcher

import (
	"testing"
	"time"
)

func TestDebouncerCoalescesEvents(t *testing.T) {
	debouncer := newDebouncer(25 * time.Millisecond)
	defer debouncer.stop()

	received := make(chan string, 2)
	flush := func(path string) {
		received <- path
	}

	if folded := debouncer.schedule("path", flush); folded {
		t.Fatalf("expected first schedule not to be folded")
	}
	if folded := debouncer.schedule("path", flush); !folded {
		t.Fatalf("expected second schedule to be folded")
	}

	count := 0
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case <-received:
			count++
		case <-deadline:
			if count != 1 {
				t.Fatalf("expected 1 flush, got %d", count)
			}
			if pending := debouncer.pending(); pending != 0 {
				t.Fatalf("expected no pending flushes, got %d", pending)
			}
			return
		}
	}
}

func TestDebouncerCancelSuppressesFlush(t *testing.T) {
	debouncer := newDebouncer(20 * time.Millisecond)
	defer debouncer.stop()

	received := make(chan string, 1)
	debouncer.schedule("gone", func(path string) {
		received <- path
	})
	debouncer.cancel("gone")

	select {
	case path := <-received:
		t.Fatalf("unexpected flush for %q", path)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncerStopIgnoresSchedules(t *testing.T) {
	debouncer := newDebouncer(10 * time.Millisecond)
	debouncer.stop()

	if folded := debouncer.schedule("path", func(string) {}); folded {
		t.Fatalf("expected stopped debouncer to ignore schedule")
	}
	if pending := debouncer.pending(); pending != 0 {
		t.Fatalf("expected no pending flushes, got %d", pending)
	}
}
