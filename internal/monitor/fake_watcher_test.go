package monitor

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"filemonitor/internal/watcher"
)

// fakeWatcher routes events the way the fsnotify backend does: to handles on
// the event path and to handles on its parent directory.
type fakeWatcher struct {
	mutex   sync.Mutex
	handles []*fakeHandle
	failing map[string]error
}

type fakeHandle struct {
	owner    *fakeWatcher
	path     string
	callback func(watcher.Event)
	closed   bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{failing: make(map[string]error)}
}

func (fake *fakeWatcher) Watch(path string, callback func(watcher.Event)) (watcher.Handle, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	if err := fake.failing[path]; err != nil {
		return nil, err
	}
	handle := &fakeHandle{owner: fake, path: path, callback: callback}
	fake.handles = append(fake.handles, handle)
	return handle, nil
}

func (handle *fakeHandle) Close() error {
	handle.owner.mutex.Lock()
	handle.closed = true
	handle.owner.mutex.Unlock()
	return nil
}

func (fake *fakeWatcher) fail(path string, err error) {
	fake.mutex.Lock()
	fake.failing[path] = err
	fake.mutex.Unlock()
}

// emit delivers to open handles only.
func (fake *fakeWatcher) emit(path string, op watcher.Op) {
	fake.deliver(path, op, false)
}

// emitQueued also reaches closed handles, like an event that was already
// queued when the watch was removed.
func (fake *fakeWatcher) emitQueued(path string, op watcher.Op) {
	fake.deliver(path, op, true)
}

func (fake *fakeWatcher) deliver(path string, op watcher.Op, includeClosed bool) {
	parent := filepath.Dir(path)
	fake.mutex.Lock()
	var targets []func(watcher.Event)
	for _, handle := range fake.handles {
		if handle.closed && !includeClosed {
			continue
		}
		if handle.path == path || handle.path == parent {
			targets = append(targets, handle.callback)
		}
	}
	fake.mutex.Unlock()

	event := watcher.Event{Path: path, Op: op, Timestamp: time.Now().UTC()}
	for _, callback := range targets {
		callback(event)
	}
}

// live returns the sorted paths of open handles, duplicates included.
func (fake *fakeWatcher) live() []string {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	var paths []string
	for _, handle := range fake.handles {
		if !handle.closed {
			paths = append(paths, handle.path)
		}
	}
	sort.Strings(paths)
	return paths
}
