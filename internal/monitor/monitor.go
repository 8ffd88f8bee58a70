package monitor

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"filemonitor/internal/logging"
	"filemonitor/internal/metrics"
	"filemonitor/internal/watcher"

	"golang.org/x/time/rate"
)

const (
	failureReportInterval = time.Second
	failureReportBurst    = 5
)

// Callback receives every delivered change.
type Callback func(path string, kind Kind)

// Listener receives every delivered change after the callback.
type Listener func(Event)

// Event is a delivered change.
type Event struct {
	Path string    `json:"path"`
	Kind Kind      `json:"kind"`
	Time time.Time `json:"timestamp"`
}

// Config describes what to watch.
type Config struct {
	Path      string
	Recursive bool
	Flags     Flag
	Callback  Callback
}

type State int

const (
	StateActive State = iota
	StateCancelled
)

func (state State) String() string {
	switch state {
	case StateActive:
		return "active"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type subscriber struct {
	id       uint64
	listener Listener
}

// Monitor watches a path and, when recursive, every directory beneath it.
type Monitor struct {
	path      string
	recursive bool
	flags     Flag

	watcher      PathWatcher
	logger       *logging.Logger
	registry     *Registry
	metrics      *metrics.Registry
	errorHandler func(error)
	limiter      *rate.Limiter

	mutex       sync.Mutex
	callback    Callback
	root        *watchNode
	nodes       map[string]*watchNode
	subscribers []subscriber
	nextSubID   uint64
	cancelled   bool
	suppressed  uint64
}

// New starts monitoring cfg.Path. The root watch is opened before New
// returns; when cfg.Recursive is set, so is one watch per existing
// subdirectory.
func New(cfg Config, opts ...Option) (*Monitor, error) {
	if cfg.Path == "" {
		return nil, ErrPathRequired
	}
	if err := cfg.Flags.Validate(); err != nil {
		return nil, err
	}

	resolved := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&resolved)
		}
	}
	if resolved.watcher == nil {
		shared, err := watcher.Default()
		if err != nil {
			return nil, err
		}
		resolved.watcher = shared
	}
	if resolved.logger == nil {
		resolved.logger = logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), logging.LevelInfo, nil)
	}

	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, err
	}

	monitor := &Monitor{
		path:         path,
		recursive:    cfg.Recursive,
		flags:        cfg.Flags,
		callback:     cfg.Callback,
		watcher:      resolved.watcher,
		registry:     resolved.registry,
		metrics:      resolved.metrics,
		errorHandler: resolved.errorHandler,
		limiter:      rate.NewLimiter(rate.Every(failureReportInterval), failureReportBurst),
		nodes:        make(map[string]*watchNode),
	}
	monitor.logger = resolved.logger.With(map[string]string{
		"filemonitor.category": "monitor",
		"monitor.path":         path,
	})

	root, err := newNode(monitor, path, true)
	if err != nil {
		return nil, err
	}
	monitor.mutex.Lock()
	monitor.root = root
	monitor.mutex.Unlock()

	if cfg.Recursive {
		monitor.walk(path)
	}

	if monitor.registry != nil {
		monitor.registry.Add(monitor)
	}
	monitor.metrics.IncMonitorsActive()
	count := monitor.WatchCount()
	monitor.metrics.SetMonitorWatches(path, count)
	monitor.logger.Info("monitor started", map[string]string{
		"recursive": strconv.FormatBool(cfg.Recursive),
		"flags":     cfg.Flags.String(),
		"watches":   strconv.Itoa(count),
	})
	return monitor, nil
}

// walk adds a node for every directory below dir. Unreadable entries are
// skipped.
func (monitor *Monitor) walk(dir string) {
	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			monitor.logger.Debug("walk entry skipped", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			return nil
		}
		if path == dir || !entry.IsDir() {
			return nil
		}
		if !monitor.addNode(path) {
			return filepath.SkipAll
		}
		return nil
	})
}

// addNode registers a subdirectory once. It reports false when the monitor
// has been cancelled.
func (monitor *Monitor) addNode(path string) bool {
	monitor.mutex.Lock()
	if monitor.cancelled {
		monitor.mutex.Unlock()
		return false
	}
	if path == monitor.path {
		monitor.mutex.Unlock()
		return true
	}
	if _, ok := monitor.nodes[path]; ok {
		monitor.mutex.Unlock()
		return true
	}
	monitor.mutex.Unlock()

	node, err := newNode(monitor, path, false)
	if err != nil {
		monitor.logger.Warn("subdirectory watch failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return true
	}

	monitor.mutex.Lock()
	_, exists := monitor.nodes[path]
	if monitor.cancelled || exists {
		monitor.mutex.Unlock()
		_ = node.release()
		return !monitor.isCancelled()
	}
	monitor.nodes[path] = node
	count := len(monitor.nodes) + 1
	monitor.mutex.Unlock()

	monitor.metrics.SetMonitorWatches(monitor.path, count)
	monitor.logger.Debug("subdirectory watched", map[string]string{
		"path":    path,
		"watches": strconv.Itoa(count),
	})
	return true
}

// addTree watches a newly created directory and any directories that were
// created inside it before its watch was in place.
func (monitor *Monitor) addTree(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if !monitor.addNode(path) {
		return
	}
	monitor.walk(path)
}

// pruneTree releases the node of a directory that was removed or moved away,
// together with every node below it. A directory created again at the same
// path is picked up by addTree.
func (monitor *Monitor) pruneTree(path string) {
	monitor.mutex.Lock()
	if _, ok := monitor.nodes[path]; !ok || monitor.cancelled {
		monitor.mutex.Unlock()
		return
	}
	prefix := path + string(filepath.Separator)
	var pruned []*watchNode
	for candidate, node := range monitor.nodes {
		if candidate == path || strings.HasPrefix(candidate, prefix) {
			pruned = append(pruned, node)
			delete(monitor.nodes, candidate)
		}
	}
	count := len(monitor.nodes) + 1
	monitor.mutex.Unlock()

	for _, node := range pruned {
		if err := node.release(); err != nil {
			monitor.logger.Warn("watch release failed", map[string]string{
				"path":  node.path,
				"error": err.Error(),
			})
		}
	}
	monitor.metrics.SetMonitorWatches(monitor.path, count)
	monitor.logger.Debug("subdirectory unwatched", map[string]string{
		"path":     path,
		"released": strconv.Itoa(len(pruned)),
		"watches":  strconv.Itoa(count),
	})
}

// Cancel releases every watch and removes the monitor from its registry.
// Once it returns no further delivery starts. Calling it again does nothing.
func (monitor *Monitor) Cancel() {
	if monitor == nil {
		return
	}
	monitor.mutex.Lock()
	if monitor.cancelled {
		monitor.mutex.Unlock()
		return
	}
	monitor.cancelled = true
	nodes := make([]*watchNode, 0, len(monitor.nodes)+1)
	if monitor.root != nil {
		nodes = append(nodes, monitor.root)
	}
	for _, node := range monitor.nodes {
		nodes = append(nodes, node)
	}
	monitor.nodes = make(map[string]*watchNode)
	monitor.subscribers = nil
	monitor.mutex.Unlock()

	var errs []error
	for _, node := range nodes {
		if err := node.release(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		monitor.logger.Warn("watch release failed", map[string]string{
			"error": err.Error(),
		})
	}

	if monitor.registry != nil {
		monitor.registry.Remove(monitor)
	}
	monitor.metrics.DecMonitorsActive()
	monitor.metrics.ForgetMonitor(monitor.path)
	monitor.logger.Info("monitor cancelled", map[string]string{
		"released": strconv.Itoa(len(nodes)),
	})
}

func (monitor *Monitor) Path() string {
	return monitor.path
}

func (monitor *Monitor) Flags() Flag {
	return monitor.flags
}

func (monitor *Monitor) Recursive() bool {
	return monitor.recursive
}

func (monitor *Monitor) Callback() Callback {
	monitor.mutex.Lock()
	defer monitor.mutex.Unlock()
	return monitor.callback
}

// SetCallback replaces the callback. It may be called at any time, including
// after Cancel.
func (monitor *Monitor) SetCallback(callback Callback) {
	monitor.mutex.Lock()
	monitor.callback = callback
	monitor.mutex.Unlock()
}

func (monitor *Monitor) State() State {
	if monitor.isCancelled() {
		return StateCancelled
	}
	return StateActive
}

// Watched returns the sorted paths of every live watch, root included.
func (monitor *Monitor) Watched() []string {
	monitor.mutex.Lock()
	defer monitor.mutex.Unlock()
	if monitor.cancelled {
		return nil
	}
	paths := make([]string, 0, len(monitor.nodes)+1)
	if monitor.root != nil {
		paths = append(paths, monitor.root.path)
	}
	for path := range monitor.nodes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (monitor *Monitor) WatchCount() int {
	monitor.mutex.Lock()
	defer monitor.mutex.Unlock()
	if monitor.cancelled || monitor.root == nil {
		return 0
	}
	return len(monitor.nodes) + 1
}

// Subscribe adds a listener. Listeners run in registration order after the
// callback. The returned function removes the listener.
func (monitor *Monitor) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	monitor.mutex.Lock()
	if monitor.cancelled {
		monitor.mutex.Unlock()
		return func() {}
	}
	monitor.nextSubID++
	id := monitor.nextSubID
	monitor.subscribers = append(monitor.subscribers, subscriber{id: id, listener: listener})
	monitor.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			monitor.removeSubscriber(id)
		})
	}
}

func (monitor *Monitor) removeSubscriber(id uint64) {
	monitor.mutex.Lock()
	defer monitor.mutex.Unlock()
	for index, candidate := range monitor.subscribers {
		if candidate.id == id {
			remaining := make([]subscriber, 0, len(monitor.subscribers)-1)
			remaining = append(remaining, monitor.subscribers[:index]...)
			remaining = append(remaining, monitor.subscribers[index+1:]...)
			monitor.subscribers = remaining
			return
		}
	}
}

func (monitor *Monitor) isCancelled() bool {
	monitor.mutex.Lock()
	defer monitor.mutex.Unlock()
	return monitor.cancelled
}
