package monitor

import "sync"

// Registry holds monitors until they are cancelled. Monitors created with
// WithRegistry add themselves and are removed by Cancel.
type Registry struct {
	mutex    sync.Mutex
	monitors []*Monitor
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add keeps monitor in the registry. Adding the same monitor twice keeps a
// single entry.
func (registry *Registry) Add(monitor *Monitor) {
	if registry == nil || monitor == nil {
		return
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	for _, existing := range registry.monitors {
		if existing == monitor {
			return
		}
	}
	registry.monitors = append(registry.monitors, monitor)
}

// Remove drops monitor and reports whether it was present.
func (registry *Registry) Remove(monitor *Monitor) bool {
	if registry == nil || monitor == nil {
		return false
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	for index, existing := range registry.monitors {
		if existing == monitor {
			registry.monitors = append(registry.monitors[:index], registry.monitors[index+1:]...)
			return true
		}
	}
	return false
}

// Monitors returns the registered monitors in insertion order.
func (registry *Registry) Monitors() []*Monitor {
	if registry == nil {
		return nil
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return append([]*Monitor(nil), registry.monitors...)
}

func (registry *Registry) Len() int {
	if registry == nil {
		return 0
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return len(registry.monitors)
}

// CancelAll cancels every registered monitor, leaving the registry empty.
func (registry *Registry) CancelAll() {
	for _, monitor := range registry.Monitors() {
		monitor.Cancel()
	}
}
