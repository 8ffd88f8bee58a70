package monitor

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"filemonitor/internal/watcher"
)

// dispatch runs on the watcher's event loop for every native event seen by
// one of the monitor's nodes.
func (monitor *Monitor) dispatch(node *watchNode, event watcher.Event) {
	if event.Op.Has(watcher.OpRemove) || event.Op.Has(watcher.OpRename) {
		monitor.pruneTree(event.Path)
	}
	// A subdirectory's own events are already reported by its parent's node.
	if !node.root && event.Path == node.path {
		return
	}
	kind, ok := KindFor(event.Op, monitor.flags)
	if !ok {
		monitor.metrics.IncEventDropped("unmapped")
		return
	}
	if node.isReleased() || monitor.isCancelled() {
		monitor.metrics.IncEventDropped("cancelled")
		return
	}

	if monitor.recursive && kind == KindCreated {
		if info, err := os.Lstat(event.Path); err == nil && info.IsDir() {
			monitor.addTree(event.Path)
		}
	}

	delivered := Event{Path: event.Path, Kind: kind, Time: event.Timestamp}
	monitor.deliver(delivered)
}

// deliver hands an event to the callback and then to each subscriber,
// checking for cancellation before every hand-off.
func (monitor *Monitor) deliver(event Event) {
	monitor.mutex.Lock()
	if monitor.cancelled {
		monitor.mutex.Unlock()
		return
	}
	callback := monitor.callback
	subscribers := append([]subscriber(nil), monitor.subscribers...)
	monitor.mutex.Unlock()

	monitor.metrics.IncEventDelivered(event.Kind.String())

	if callback != nil {
		monitor.invoke("callback", event, func() {
			callback(event.Path, event.Kind)
		})
	}
	for _, sub := range subscribers {
		if monitor.isCancelled() {
			return
		}
		listener := sub.listener
		monitor.invoke("subscriber", event, func() {
			listener(event)
		})
	}
}

func (monitor *Monitor) invoke(target string, event Event, call func()) {
	if monitor.isCancelled() {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			monitor.reportFailure(&CallbackError{
				Target: target,
				Path:   event.Path,
				Kind:   event.Kind,
				Value:  recovered,
			})
		}
	}()
	call()
}

func (monitor *Monitor) reportFailure(err *CallbackError) {
	monitor.metrics.IncCallbackFailure(err.Target)
	monitor.notifyError(err)
	if !monitor.limiter.Allow() {
		atomic.AddUint64(&monitor.suppressed, 1)
		return
	}
	fields := map[string]string{
		"target": err.Target,
		"path":   err.Path,
		"kind":   err.Kind.String(),
		"error":  err.Error(),
	}
	if suppressed := atomic.SwapUint64(&monitor.suppressed, 0); suppressed > 0 {
		fields["suppressed"] = strconv.FormatUint(suppressed, 10)
	}
	monitor.logger.Error("event delivery failed", fields)
}

func (monitor *Monitor) notifyError(err error) {
	if monitor.errorHandler == nil {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			monitor.logger.Error("error handler panicked", map[string]string{
				"panic": fmt.Sprint(recovered),
			})
		}
	}()
	monitor.errorHandler(err)
}
