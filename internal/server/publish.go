package server

import (
	"filemonitor/internal/event"
	"filemonitor/internal/filter"
	"filemonitor/internal/monitor"
)

// Publish forwards every event of m to bus unless matcher ignores its path.
// The returned function stops forwarding.
func Publish(m *monitor.Monitor, bus *event.Bus[event.FileEvent], matcher *filter.Matcher) func() {
	if m == nil || bus == nil {
		return func() {}
	}
	name := m.Path()
	return m.Subscribe(func(delivered monitor.Event) {
		if matcher.IsIgnored(delivered.Path) {
			return
		}
		payload := event.FileEvent{
			Monitor:    name,
			Path:       delivered.Path,
			Kind:       delivered.Kind.String(),
			OccurredAt: delivered.Time,
		}
		if payload.OccurredAt.IsZero() {
			payload = event.NewFileEvent(name, delivered.Path, delivered.Kind.String())
		}
		bus.Publish(payload)
	})
}
