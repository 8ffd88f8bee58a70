package monitor

import (
	"errors"
	"fmt"

	"filemonitor/internal/watcher"
)

var (
	// ErrNotFound is returned when the watched path does not exist.
	ErrNotFound = watcher.ErrNotFound
	// ErrPermissionDenied is returned when the path cannot be observed.
	ErrPermissionDenied = watcher.ErrPermissionDenied
	ErrUnsupportedFlag  = errors.New("unsupported flag")
	ErrPathRequired     = errors.New("path is required")
)

// CallbackError reports a panic recovered from a callback or subscriber.
type CallbackError struct {
	Target string
	Path   string
	Kind   Kind
	Value  any
}

func (err *CallbackError) Error() string {
	return fmt.Sprintf("%s panicked on %s %s: %v", err.Target, err.Kind, err.Path, err.Value)
}

func (err *CallbackError) Unwrap() error {
	if cause, ok := err.Value.(error); ok {
		return cause
	}
	return nil
}
