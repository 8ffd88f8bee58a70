package watcher

import (
	"sync"
	"sync/atomic"
	"time"
)

// debouncer coalesces write bursts per path. Each schedule call pushes the
// deadline out; the flush runs once the path has been quiet for duration.
type debouncer struct {
	mutex    sync.Mutex
	duration time.Duration
	timers   map[string]*time.Timer
	stopped  bool
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		timers:   make(map[string]*time.Timer),
	}
}

// schedule arms or re-arms the timer for path. It reports whether a pending
// flush was folded into this one.
func (debouncer *debouncer) schedule(path string, flush func(string)) bool {
	if debouncer == nil {
		return false
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	if debouncer.stopped {
		return false
	}
	if timer, ok := debouncer.timers[path]; ok {
		timer.Reset(debouncer.duration)
		return true
	}
	debouncer.timers[path] = time.AfterFunc(debouncer.duration, func() {
		if debouncer.pop(path) {
			flush(path)
		}
	})
	return false
}

func (debouncer *debouncer) pop(path string) bool {
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	if debouncer.stopped {
		return false
	}
	if _, ok := debouncer.timers[path]; !ok {
		return false
	}
	delete(debouncer.timers, path)
	return true
}

// cancel forgets a pending flush, used when the path itself goes away.
func (debouncer *debouncer) cancel(path string) {
	if debouncer == nil {
		return
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	if timer, ok := debouncer.timers[path]; ok {
		timer.Stop()
		delete(debouncer.timers, path)
	}
}

func (debouncer *debouncer) pending() int {
	if debouncer == nil {
		return 0
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	return len(debouncer.timers)
}

func (debouncer *debouncer) stop() {
	if debouncer == nil {
		return
	}
	debouncer.mutex.Lock()
	defer debouncer.mutex.Unlock()
	for _, timer := range debouncer.timers {
		timer.Stop()
	}
	debouncer.timers = nil
	debouncer.stopped = true
}

func (watcher *Watcher) handleEvent(event Event) {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return
	}
	if watcher.suppressEchoLocked(event) {
		watcher.mutex.Unlock()
		watcher.metrics.IncEventDropped("echo")
		return
	}
	callbacks := watcher.callbacksForEventLocked(event.Path)
	settler := watcher.settler
	watcher.mutex.Unlock()

	if event.Op.Has(OpCreate) {
		watcher.rearm(event.Path)
	}
	if settler != nil {
		switch {
		case event.Op.Has(OpWrite):
			if settler.schedule(event.Path, watcher.settle) {
				watcher.metrics.IncEventDropped("coalesced")
			}
		case event.Op.Has(OpRemove) || event.Op.Has(OpRename):
			settler.cancel(event.Path)
		}
	}

	if len(callbacks) == 0 {
		atomic.AddUint64(&watcher.eventsDropped, 1)
		watcher.metrics.IncBackendUnrouted()
		return
	}
	for _, callback := range callbacks {
		callback(event)
		atomic.AddUint64(&watcher.eventsDelivered, 1)
	}
}

// settle queues the synthetic OpSettled event so it is delivered on the run
// loop like any native event.
func (watcher *Watcher) settle(path string) {
	watcher.inject(Event{
		Path:      path,
		Op:        OpSettled,
		Timestamp: time.Now().UTC(),
	})
}
