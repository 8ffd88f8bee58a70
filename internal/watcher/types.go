package watcher

import (
	"strings"
	"sync"
	"time"

	"filemonitor/internal/logging"
	"filemonitor/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

// Op is the native event vocabulary of the backend. The low bits mirror
// fsnotify; the high bits are synthesised by the Watcher itself.
type Op uint32

const (
	OpCreate = Op(fsnotify.Create)
	OpWrite  = Op(fsnotify.Write)
	OpRemove = Op(fsnotify.Remove)
	OpRename = Op(fsnotify.Rename)
	OpChmod  = Op(fsnotify.Chmod)

	// OpSettled follows a burst of writes on a path once it has been quiet
	// for the settle interval.
	OpSettled Op = 1 << 24
	// OpUnmount is reserved for backends that observe mount changes. The
	// fsnotify backend never produces it.
	OpUnmount Op = 1 << 25
)

var opNames = []struct {
	op   Op
	name string
}{
	{OpCreate, "CREATE"},
	{OpWrite, "WRITE"},
	{OpRemove, "REMOVE"},
	{OpRename, "RENAME"},
	{OpChmod, "CHMOD"},
	{OpSettled, "SETTLED"},
	{OpUnmount, "UNMOUNT"},
}

func (op Op) Has(other Op) bool {
	return op&other == other && other != 0
}

func (op Op) String() string {
	var names []string
	for _, candidate := range opNames {
		if op.Has(candidate.op) {
			names = append(names, candidate.name)
		}
	}
	if len(names) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(names, "|")
}

// Event represents a single native filesystem change.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Handle releases watcher resources for a registration.
type Handle interface {
	Close() error
}

// Watch registers a callback for filesystem events on a path.
type Watch interface {
	Watch(path string, callback func(Event)) (Handle, error)
}

// Options controls watcher behavior.
type Options struct {
	Logger *logging.Logger
	// Settle is the quiet period after the last write before OpSettled is
	// emitted. Zero selects the default; a negative value disables it.
	Settle       time.Duration
	MaxWatches   int
	ErrorHandler func(error)
	Metrics      *metrics.Registry
}

// Metrics reports current watcher stats.
type Metrics struct {
	ActiveWatches   int
	EventsDelivered uint64
	EventsDropped   uint64
	Errors          uint64
	RestartAttempts int
}

// Watcher is the concrete fsnotify-backed implementation.
type Watcher struct {
	watcher       *fsnotify.Watcher
	mutex         sync.Mutex
	callbacks     map[string][]callbackEntry
	settler       *debouncer
	events        chan Event
	errors        chan error
	done          chan struct{}
	closed        bool
	logger        *logging.Logger
	metrics       *metrics.Registry
	maxWatches    int
	activeWatches int
	nextID        uint64
	echoes        map[echoKey]time.Time

	recovery recovery

	eventsDelivered uint64
	eventsDropped   uint64
	errorCount      uint64
}
