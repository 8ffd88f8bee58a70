package watcher

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// recovery paces restarts of the fsnotify instance after backend errors.
// At most one restart is pending at a time. The attempt counter resets after
// a successful restart.
type recovery struct {
	mutex    sync.Mutex
	pending  *time.Timer
	attempts int
	handler  func(error)
}

type recoveryStep int

const (
	recoveryScheduled recoveryStep = iota
	recoveryPending
	recoveryExhausted
)

func restartDelay(attempt int) time.Duration {
	return restartBaseDelay << attempt
}

// schedule arms restart after the backoff for the next attempt.
func (r *recovery) schedule(restart func()) (recoveryStep, int, time.Duration) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.pending != nil {
		return recoveryPending, r.attempts, 0
	}
	if r.attempts >= maxRestartAttempts {
		return recoveryExhausted, r.attempts, 0
	}
	delay := restartDelay(r.attempts)
	r.attempts++
	r.pending = time.AfterFunc(delay, restart)
	return recoveryScheduled, r.attempts, delay
}

// finish clears the pending restart and, on success, the attempt count.
func (r *recovery) finish(succeeded bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.pending = nil
	if succeeded {
		r.attempts = 0
	}
}

func (r *recovery) cancel() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

func (r *recovery) attemptCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.attempts
}

func (r *recovery) setHandler(handler func(error)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.handler = handler
}

func (r *recovery) report(err error) {
	r.mutex.Lock()
	handler := r.handler
	r.mutex.Unlock()
	if handler != nil && err != nil {
		handler(err)
	}
}

// handleError counts a backend error. A queue overflow loses events but
// leaves the watches intact; any other error restarts the backend.
func (watcher *Watcher) handleError(err error) {
	if err == nil {
		return
	}
	atomic.AddUint64(&watcher.errorCount, 1)
	watcher.metrics.IncBackendError()
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		atomic.AddUint64(&watcher.eventsDropped, 1)
		watcher.metrics.IncEventDropped("overflow")
		watcher.logWarn("backend event queue overflowed", map[string]string{
			"error": err.Error(),
		})
		return
	}
	watcher.logWarn("backend error", map[string]string{
		"error": err.Error(),
	})
	watcher.scheduleRestart(err)
}

func (watcher *Watcher) isClosed() bool {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return watcher.closed
}

func (watcher *Watcher) scheduleRestart(cause error) {
	if watcher.isClosed() {
		return
	}
	step, attempt, delay := watcher.recovery.schedule(watcher.performRestart)
	switch step {
	case recoveryExhausted:
		watcher.logWarn("backend restarts exhausted", map[string]string{
			"attempts": strconv.Itoa(attempt),
			"error":    cause.Error(),
		})
		watcher.recovery.report(cause)
	case recoveryScheduled:
		watcher.logWarn("backend restart scheduled", map[string]string{
			"attempt": strconv.Itoa(attempt),
			"delay":   delay.String(),
		})
	}
}

func (watcher *Watcher) performRestart() {
	err := watcher.restart()
	watcher.recovery.finish(err == nil)
	if err == nil {
		return
	}
	watcher.logWarn("backend restart failed", map[string]string{
		"error": err.Error(),
	})
	watcher.scheduleRestart(err)
}

// restart swaps in a fresh fsnotify instance holding every registered path.
// Paths that vanished since they were registered are skipped.
func (watcher *Watcher) restart() error {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	paths := make([]string, 0, len(watcher.callbacks))
	for path := range watcher.callbacks {
		paths = append(paths, path)
	}
	watcher.mutex.Unlock()

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, path := range paths {
		if addErr := replacement.Add(path); addErr != nil {
			watcher.logWarn("re-adding watch failed", map[string]string{
				"path":  path,
				"error": addErr.Error(),
			})
		}
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return replacement.Close()
	}
	previous := watcher.watcher
	watcher.watcher = replacement
	watcher.mutex.Unlock()

	watcher.metrics.IncBackendRestart()
	watcher.startForwarder(replacement)
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}
