package monitor

import (
	"filemonitor/internal/logging"
	"filemonitor/internal/metrics"
	"filemonitor/internal/watcher"
)

// PathWatcher opens a native watch on a single path. Directory watches also
// report events for their direct children.
type PathWatcher interface {
	Watch(path string, callback func(watcher.Event)) (watcher.Handle, error)
}

type Option func(*options)

type options struct {
	watcher      PathWatcher
	logger       *logging.Logger
	registry     *Registry
	metrics      *metrics.Registry
	errorHandler func(error)
}

// WithWatcher selects the watch backend. The default is watcher.Default().
func WithWatcher(pathWatcher PathWatcher) Option {
	return func(options *options) {
		if pathWatcher != nil {
			options.watcher = pathWatcher
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(options *options) {
		if logger != nil {
			options.logger = logger
		}
	}
}

// WithRegistry keeps the monitor in registry until it is cancelled.
func WithRegistry(registry *Registry) Option {
	return func(options *options) {
		options.registry = registry
	}
}

func WithMetrics(registry *metrics.Registry) Option {
	return func(options *options) {
		options.metrics = registry
	}
}

// WithErrorHandler receives recovered callback and subscriber failures.
func WithErrorHandler(handler func(error)) Option {
	return func(options *options) {
		options.errorHandler = handler
	}
}
