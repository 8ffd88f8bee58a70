package watcher

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"filemonitor/internal/logging"
	"filemonitor/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultSettle      = 200 * time.Millisecond
	defaultMaxWatches  = 8192
	eventQueueSize     = 256
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
	echoWindow         = 100 * time.Millisecond
	maxPendingEchoes   = 64
)

var (
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
	ErrNotFound           = errors.New("path not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrClosed             = errors.New("watcher is closed")
)

var (
	defaultOnce    sync.Once
	defaultWatcher *Watcher
	defaultErr     error
)

// Default returns the process-wide Watcher, creating it on first use. It is
// never closed, so every monitor built on it shares one event loop for the
// lifetime of the process.
func Default() (*Watcher, error) {
	defaultOnce.Do(func() {
		defaultWatcher, defaultErr = NewWithOptions(Options{Metrics: metrics.Default})
	})
	return defaultWatcher, defaultErr
}

// New creates a Watcher with default options.
func New() (*Watcher, error) {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a Watcher with custom options.
func NewWithOptions(options Options) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), logging.LevelInfo, nil)
	}

	settle := options.Settle
	if settle == 0 {
		settle = defaultSettle
	}

	maxWatches := options.MaxWatches
	if maxWatches <= 0 {
		maxWatches = defaultMaxWatches
	}

	instance := &Watcher{
		watcher:    watcher,
		callbacks:  make(map[string][]callbackEntry),
		echoes:     make(map[echoKey]time.Time),
		events:     make(chan Event, eventQueueSize),
		errors:     make(chan error, 4),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    options.Metrics,
		maxWatches: maxWatches,
		recovery:   recovery{handler: options.ErrorHandler},
	}
	if settle > 0 {
		instance.settler = newDebouncer(settle)
	}

	instance.startForwarder(watcher)
	go instance.run()
	return instance, nil
}

// Close shuts down the watcher and stops event processing. Registered
// handles become inert.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	if watcher.settler != nil {
		watcher.settler.stop()
		watcher.settler = nil
	}
	source := watcher.watcher
	watcher.mutex.Unlock()

	watcher.recovery.cancel()

	close(watcher.done)
	if source == nil {
		return nil
	}
	return source.Close()
}

// run is the single loop that hands every event to its registrations.
func (watcher *Watcher) run() {
	for {
		select {
		case event := <-watcher.events:
			watcher.handleEvent(event)
		case err := <-watcher.errors:
			watcher.handleError(err)
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) startForwarder(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case raw, ok := <-source.Events:
				if !ok {
					return
				}
				event := Event{
					Path:      raw.Name,
					Op:        Op(raw.Op),
					Timestamp: time.Now().UTC(),
				}
				select {
				case watcher.events <- event:
				case <-watcher.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case watcher.errors <- err:
				case <-watcher.done:
					return
				}
			case <-watcher.done:
				return
			}
		}
	}()
}

// inject queues a synthetic event behind any native ones already waiting.
func (watcher *Watcher) inject(event Event) {
	select {
	case watcher.events <- event:
	case <-watcher.done:
	}
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Warn(message, withWatcherFields(fields))
}

// SetErrorHandler configures a callback for unrecoverable watcher failures.
func (watcher *Watcher) SetErrorHandler(handler func(error)) {
	if watcher == nil {
		return
	}
	watcher.recovery.setHandler(handler)
}

func (watcher *Watcher) logDebug(message, path string, activeCount int) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	fields := map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(activeCount),
	}
	watcher.logger.Debug(message, withWatcherFields(fields))
}

func withWatcherFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+2)
	merged["filemonitor.category"] = "watcher"
	merged["filemonitor.source"] = "backend"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}

// Metrics reports current watcher stats.
func (watcher *Watcher) Metrics() Metrics {
	if watcher == nil {
		return Metrics{}
	}
	watcher.mutex.Lock()
	active := watcher.activeWatches
	watcher.mutex.Unlock()
	restartAttempts := watcher.recovery.attemptCount()
	return Metrics{
		ActiveWatches:   active,
		EventsDelivered: atomic.LoadUint64(&watcher.eventsDelivered),
		EventsDropped:   atomic.LoadUint64(&watcher.eventsDropped),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
		RestartAttempts: restartAttempts,
	}
}
