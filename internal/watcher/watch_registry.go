package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
)

type callbackEntry struct {
	id       uint64
	callback func(Event)
	isDir    bool
}

type watchHandle struct {
	watcher *Watcher
	path    string
	id      uint64
	once    sync.Once
}

func (handle *watchHandle) Close() error {
	if handle == nil || handle.watcher == nil {
		return nil
	}
	var err error
	handle.once.Do(func() {
		err = handle.watcher.removeCallback(handle.path, handle.id)
	})
	return err
}

// Watch registers a callback for filesystem events on a path. Directories
// report changes to their direct children as well as to themselves.
func (watcher *Watcher) Watch(path string, callback func(Event)) (Handle, error) {
	if watcher == nil {
		return nil, errors.New("watcher is nil")
	}
	if path == "" {
		return nil, errors.New("path is required")
	}
	if callback == nil {
		return nil, errors.New("callback is required")
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, classifyError(path, err)
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil, ErrClosed
	}

	needsAdd := len(watcher.callbacks[path]) == 0
	if needsAdd && watcher.activeWatches >= watcher.maxWatches {
		watcher.mutex.Unlock()
		return nil, fmt.Errorf("watch %s: %w", path, ErrMaxWatchesExceeded)
	}
	watcher.nextID++
	entry := callbackEntry{callback: callback, id: watcher.nextID, isDir: info.IsDir()}
	watcher.callbacks[path] = append(watcher.callbacks[path], entry)
	if needsAdd {
		watcher.activeWatches++
	}
	activeCount := watcher.activeWatches
	source := watcher.watcher
	watcher.mutex.Unlock()

	if needsAdd {
		if err := source.Add(path); err != nil {
			watcher.dropCallback(path, entry.id)
			watcher.logWarn("watch add failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			return nil, classifyError(path, err)
		}
		watcher.metrics.SetBackendWatches(activeCount)
		watcher.logDebug("watch added", path, activeCount)
	}

	return &watchHandle{watcher: watcher, path: path, id: entry.id}, nil
}

func (watcher *Watcher) removeCallback(path string, id uint64) error {
	if watcher == nil {
		return nil
	}

	shouldRemove, activeCount, source := watcher.detachCallback(path, id)
	if !shouldRemove || source == nil {
		return nil
	}

	watcher.metrics.SetBackendWatches(activeCount)
	if err := source.Remove(path); err != nil {
		// The OS drops the watch itself once the directory is gone.
		if errors.Is(err, fsnotify.ErrNonExistentWatch) || errors.Is(err, fsnotify.ErrClosed) || errors.Is(err, syscall.EINVAL) {
			watcher.logDebug("watch already gone", path, activeCount)
			return nil
		}
		watcher.logWarn("watch remove failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return err
	}
	watcher.logDebug("watch removed", path, activeCount)
	return nil
}

func (watcher *Watcher) dropCallback(path string, id uint64) {
	if watcher == nil {
		return
	}
	watcher.detachCallback(path, id)
}

// detachCallback removes one registration and reports whether it was the last
// one on path.
func (watcher *Watcher) detachCallback(path string, id uint64) (bool, int, *fsnotify.Watcher) {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()

	callbacks := watcher.callbacks[path]
	if len(callbacks) == 0 {
		return false, watcher.activeWatches, nil
	}
	for index, candidate := range callbacks {
		if candidate.id == id {
			callbacks = append(callbacks[:index], callbacks[index+1:]...)
			break
		}
	}
	if len(callbacks) > 0 {
		watcher.callbacks[path] = callbacks
		return false, watcher.activeWatches, nil
	}
	delete(watcher.callbacks, path)
	if watcher.activeWatches > 0 {
		watcher.activeWatches--
	}
	if watcher.closed {
		return false, watcher.activeWatches, nil
	}
	return true, watcher.activeWatches, watcher.watcher
}

// callbacksForEventLocked collects the registrations an event belongs to: the
// ones on the path itself and the directory registrations on its parent.
func (watcher *Watcher) callbacksForEventLocked(path string) []func(Event) {
	var callbacks []func(Event)
	for _, entry := range watcher.callbacks[path] {
		callbacks = append(callbacks, entry.callback)
	}
	parent := filepath.Dir(path)
	if parent == path {
		return callbacks
	}
	for _, entry := range watcher.callbacks[parent] {
		if entry.isDir {
			callbacks = append(callbacks, entry.callback)
		}
	}
	return callbacks
}

func (watcher *Watcher) isPathWatchedLocked(path string) bool {
	if watcher == nil {
		return false
	}
	return len(watcher.callbacks[path]) > 0
}

// rearm re-adds a path that is registered but whose OS watch was dropped,
// which happens when a watched directory is deleted and created again.
func (watcher *Watcher) rearm(path string) {
	watcher.mutex.Lock()
	if watcher.closed || !watcher.isPathWatchedLocked(path) {
		watcher.mutex.Unlock()
		return
	}
	source := watcher.watcher
	activeCount := watcher.activeWatches
	watcher.mutex.Unlock()

	if source == nil {
		return
	}
	if err := source.Add(path); err != nil {
		watcher.logWarn("watch rearm failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	watcher.logDebug("watch rearmed", path, activeCount)
}

// classifyError maps OS failures onto ErrNotFound and ErrPermissionDenied
// while keeping the original cause in the chain.
func classifyError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("watch %s: %w: %w", path, ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("watch %s: %w: %w", path, ErrPermissionDenied, err)
	default:
		return fmt.Errorf("watch %s: %w", path, err)
	}
}

type echoKey struct {
	path string
	op   Op
}

// suppressEchoLocked reports whether event is the second copy of a change to
// a directory that is watched both on its own and through its parent. Such a
// change arrives once from each watch with the same path and op.
func (watcher *Watcher) suppressEchoLocked(event Event) bool {
	if event.Op&(OpChmod|OpRemove|OpRename) == 0 {
		return false
	}
	key := echoKey{path: event.Path, op: event.Op}
	if seen, ok := watcher.echoes[key]; ok {
		delete(watcher.echoes, key)
		if event.Timestamp.Sub(seen) <= echoWindow {
			return true
		}
	}
	parent := filepath.Dir(event.Path)
	if parent == event.Path || !watcher.isWatchedDirLocked(event.Path) || !watcher.isWatchedDirLocked(parent) {
		return false
	}
	if len(watcher.echoes) >= maxPendingEchoes {
		for pending, seen := range watcher.echoes {
			if event.Timestamp.Sub(seen) > echoWindow {
				delete(watcher.echoes, pending)
			}
		}
	}
	watcher.echoes[key] = event.Timestamp
	return false
}

func (watcher *Watcher) isWatchedDirLocked(path string) bool {
	for _, entry := range watcher.callbacks[path] {
		if entry.isDir {
			return true
		}
	}
	return false
}
