package monitor

import (
	"sync"

	"filemonitor/internal/watcher"
)

// watchNode owns the native watch for one directory of a monitor.
type watchNode struct {
	path    string
	root    bool
	monitor *Monitor

	mutex    sync.Mutex
	handle   watcher.Handle
	released bool
}

func newNode(monitor *Monitor, path string, root bool) (*watchNode, error) {
	node := &watchNode{path: path, root: root, monitor: monitor}
	handle, err := monitor.watcher.Watch(path, func(event watcher.Event) {
		monitor.dispatch(node, event)
	})
	if err != nil {
		return nil, err
	}
	node.handle = handle
	return node, nil
}

// release closes the native watch. Later calls do nothing.
func (node *watchNode) release() error {
	node.mutex.Lock()
	if node.released {
		node.mutex.Unlock()
		return nil
	}
	node.released = true
	handle := node.handle
	node.handle = nil
	node.mutex.Unlock()

	if handle == nil {
		return nil
	}
	return handle.Close()
}

func (node *watchNode) isReleased() bool {
	node.mutex.Lock()
	defer node.mutex.Unlock()
	return node.released
}
