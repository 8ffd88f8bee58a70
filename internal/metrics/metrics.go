// Package metrics exposes filemonitor counters through a Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filemonitor"

// Registry owns every filemonitor collector. All methods are safe on a nil
// receiver so components can run without metrics.
type Registry struct {
	registry *prometheus.Registry

	backendWatches  prometheus.Gauge
	backendErrors   prometheus.Counter
	backendRestarts prometheus.Counter
	backendDropped  prometheus.Counter

	monitorsActive   prometheus.Gauge
	monitorWatches   *prometheus.GaugeVec
	eventsDelivered  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	callbackFailures *prometheus.CounterVec

	busPublished   *prometheus.CounterVec
	busDropped     *prometheus.CounterVec
	busSubscribers *prometheus.GaugeVec
}

var Default = NewRegistry()

func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		backendWatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_watches",
			Help:      "Paths currently registered with the native watch backend.",
		}),
		backendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Errors reported by the native watch backend.",
		}),
		backendRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_restarts_total",
			Help:      "Native watch backend restarts.",
		}),
		backendDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_events_unrouted_total",
			Help:      "Native events that matched no registered watch.",
		}),
		monitorsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitors_active",
			Help:      "Monitors that have not been cancelled.",
		}),
		monitorWatches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_watches",
			Help:      "Live watch nodes per monitor, root included.",
		}, []string{"monitor"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Semantic events delivered to callbacks and subscribers.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped before delivery.",
		}, []string{"reason"}),
		callbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_failures_total",
			Help:      "Callback and subscriber panics recovered by the dispatcher.",
		}, []string{"target"}),
		busPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_published_total",
			Help:      "Events published on an event bus.",
		}, []string{"bus", "type"}),
		busDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_dropped_total",
			Help:      "Events an event bus could not hand to a subscriber.",
		}, []string{"bus", "type"}),
		busSubscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_subscribers",
			Help:      "Event bus subscribers by filter mode.",
		}, []string{"bus", "filtered"}),
	}
	r.registry.MustRegister(
		r.backendWatches,
		r.backendErrors,
		r.backendRestarts,
		r.backendDropped,
		r.monitorsActive,
		r.monitorWatches,
		r.eventsDelivered,
		r.eventsDropped,
		r.callbackFailures,
		r.busPublished,
		r.busDropped,
		r.busSubscribers,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

func (r *Registry) SetBackendWatches(count int) {
	if r == nil {
		return
	}
	r.backendWatches.Set(float64(count))
}

func (r *Registry) IncBackendError() {
	if r == nil {
		return
	}
	r.backendErrors.Inc()
}

func (r *Registry) IncBackendRestart() {
	if r == nil {
		return
	}
	r.backendRestarts.Inc()
}

func (r *Registry) IncBackendUnrouted() {
	if r == nil {
		return
	}
	r.backendDropped.Inc()
}

func (r *Registry) IncMonitorsActive() {
	if r == nil {
		return
	}
	r.monitorsActive.Inc()
}

func (r *Registry) DecMonitorsActive() {
	if r == nil {
		return
	}
	r.monitorsActive.Dec()
}

func (r *Registry) SetMonitorWatches(monitor string, count int) {
	if r == nil {
		return
	}
	r.monitorWatches.WithLabelValues(labelValue(monitor)).Set(float64(count))
}

func (r *Registry) ForgetMonitor(monitor string) {
	if r == nil {
		return
	}
	r.monitorWatches.DeleteLabelValues(labelValue(monitor))
}

func (r *Registry) IncEventDelivered(kind string) {
	if r == nil {
		return
	}
	r.eventsDelivered.WithLabelValues(labelValue(kind)).Inc()
}

func (r *Registry) IncEventDropped(reason string) {
	if r == nil {
		return
	}
	r.eventsDropped.WithLabelValues(labelValue(reason)).Inc()
}

func (r *Registry) IncCallbackFailure(target string) {
	if r == nil {
		return
	}
	r.callbackFailures.WithLabelValues(labelValue(target)).Inc()
}

func (r *Registry) IncBusPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.busPublished.WithLabelValues(labelValue(bus), labelValue(eventType)).Inc()
}

func (r *Registry) IncBusDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.busDropped.WithLabelValues(labelValue(bus), labelValue(eventType)).Inc()
}

func (r *Registry) SetBusSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	r.busSubscribers.WithLabelValues(labelValue(bus), strconv.FormatBool(true)).Set(float64(filtered))
	r.busSubscribers.WithLabelValues(labelValue(bus), strconv.FormatBool(false)).Set(float64(unfiltered))
}

func labelValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}
