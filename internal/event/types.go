package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

// FileEvent is a change delivered by one monitor. Its type is the change
// kind, so subscribers can filter with SubscribeTypes("created", ...).
type FileEvent struct {
	Monitor    string    `json:"monitor"`
	Path       string    `json:"path"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"timestamp"`
}

func NewFileEvent(monitor, path, kind string) FileEvent {
	return FileEvent{
		Monitor:    monitor,
		Path:       path,
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
	}
}

func (e FileEvent) Type() string {
	return e.Kind
}

func (e FileEvent) Timestamp() time.Time {
	return e.OccurredAt
}
