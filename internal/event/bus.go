// Package event fans file events out to channel subscribers.
package event

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"filemonitor/internal/buffer"
	"filemonitor/internal/logging"
	"filemonitor/internal/metrics"

	"golang.org/x/time/rate"
)

const (
	defaultBufferSize   = 128
	defaultBusName      = "event_bus"
	dropWarningInterval = 30 * time.Second
)

type BusOptions struct {
	Name string
	// BufferSize is the channel capacity of each subscriber.
	BufferSize int
	// SendTimeout makes Publish wait for a subscriber whose channel is full.
	// A subscriber still full when it expires is unsubscribed. Zero drops the
	// event for that subscriber instead.
	SendTimeout time.Duration

	// HistorySize keeps the most recent events for History.
	HistorySize int
	Metrics     *metrics.Registry
	Logger      *logging.Logger
}

// Bus delivers every published event to each subscriber whose filter
// accepts it. Publish never blocks unless SendTimeout is set.
type Bus[T Event] struct {
	options      BusOptions
	metrics      *metrics.Registry
	logger       *logging.Logger
	dropWarnings *rate.Limiter

	mu          sync.Mutex
	closed      bool
	closeOnce   sync.Once
	nextID      uint64
	subscribers map[uint64]*subscriber[T]
	history     *buffer.Ring[T]

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBus returns a bus that closes itself when ctx is done.
func NewBus[T Event](ctx context.Context, options BusOptions) *Bus[T] {
	if options.BufferSize <= 0 {
		options.BufferSize = defaultBufferSize
	}
	if options.Name == "" {
		options.Name = defaultBusName
	}
	bus := &Bus[T]{
		options:      options,
		metrics:      options.Metrics,
		dropWarnings: rate.NewLimiter(rate.Every(dropWarningInterval), 1),
		subscribers:  make(map[uint64]*subscriber[T]),
	}
	if bus.metrics == nil {
		bus.metrics = metrics.Default
	}
	if options.Logger != nil {
		bus.logger = options.Logger.With(map[string]string{
			"filemonitor.category": "event_bus",
			"bus":                  options.Name,
		})
	}
	if options.HistorySize > 0 {
		bus.history = buffer.NewRing[T](options.HistorySize)
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			bus.Close()
		}()
	}
	return bus
}

// Subscribe receives every event. The returned function unsubscribes and
// closes the channel.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

// SubscribeFiltered receives the events accepted by accept. A filter that
// panics ends the subscription.
func (b *Bus[T]) SubscribeFiltered(accept func(T) bool) (<-chan T, func()) {
	_, ch, cancel := b.subscribe(accept, false)
	return ch, cancel
}

// SubscribeWithHistory subscribes like SubscribeFiltered and returns the kept
// history, oldest first and unfiltered, taken at the same instant. Every
// event is either in that history or sent on the channel, never both.
func (b *Bus[T]) SubscribeWithHistory(accept func(T) bool) ([]T, <-chan T, func()) {
	return b.subscribe(accept, true)
}

func (b *Bus[T]) subscribe(accept func(T) bool, withHistory bool) ([]T, <-chan T, func()) {
	sub := &subscriber[T]{ch: make(chan T, b.options.BufferSize), accept: accept}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return nil, sub.ch, func() {}
	}
	var history []T
	if withHistory {
		history = b.history.Latest(0)
	}
	b.nextID++
	id := b.nextID
	b.subscribers[id] = sub
	b.mu.Unlock()
	b.reportSubscribers()

	var once sync.Once
	return history, sub.ch, func() {
		once.Do(func() {
			b.unsubscribe(id)
		})
	}
}

// SubscribeTypes receives events whose Type is one of types.
func (b *Bus[T]) SubscribeTypes(types ...string) (<-chan T, func()) {
	wanted := make(map[string]bool, len(types))
	for _, eventType := range types {
		if eventType != "" {
			wanted[eventType] = true
		}
	}
	return b.SubscribeFiltered(func(event T) bool {
		return wanted[event.Type()]
	})
}

func (b *Bus[T]) Publish(event T) {
	if b == nil || any(event) == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.history != nil {
		b.history.Add(event)
	}
	targets := make(map[uint64]*subscriber[T], len(b.subscribers))
	for id, sub := range b.subscribers {
		targets[id] = sub
	}
	b.mu.Unlock()

	eventType := typeOf(event)
	b.published.Add(1)
	b.metrics.IncBusPublished(b.options.Name, eventType)

	for id, sub := range targets {
		if !b.accepts(id, sub, event) {
			continue
		}
		if sub.send(event, b.options.SendTimeout) {
			continue
		}
		b.drop(eventType)
		if b.options.SendTimeout > 0 {
			b.unsubscribe(id)
			b.warn("slow subscriber removed", map[string]string{
				"timeout": b.options.SendTimeout.String(),
			})
		}
	}
}

// History returns up to limit of the most recent events, oldest first. A
// limit of zero returns everything kept.
func (b *Bus[T]) History(limit int) []T {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.Latest(limit)
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close ends every subscription. Later publishes are ignored.
func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		subscribers := b.subscribers
		b.subscribers = make(map[uint64]*subscriber[T])
		b.mu.Unlock()

		for _, sub := range subscribers {
			sub.close()
		}
		b.reportSubscribers()
	})
}

func (b *Bus[T]) accepts(id uint64, sub *subscriber[T], event T) (accepted bool) {
	if sub.accept == nil {
		return true
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			b.warn("subscriber filter panicked", nil)
			b.unsubscribe(id)
			accepted = false
		}
	}()
	return sub.accept(event)
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	sub.close()
	b.reportSubscribers()
}

func (b *Bus[T]) drop(eventType string) {
	dropped := b.dropped.Add(1)
	b.metrics.IncBusDropped(b.options.Name, eventType)
	if !b.dropWarnings.Allow() {
		return
	}
	b.warn("event bus dropping events", map[string]string{
		"dropped":   strconv.FormatInt(dropped, 10),
		"published": strconv.FormatInt(b.published.Load(), 10),
	})
}

func (b *Bus[T]) reportSubscribers() {
	filtered, unfiltered := 0, 0
	b.mu.Lock()
	for _, sub := range b.subscribers {
		if sub.accept == nil {
			unfiltered++
		} else {
			filtered++
		}
	}
	b.mu.Unlock()
	b.metrics.SetBusSubscriberCounts(b.options.Name, filtered, unfiltered)
}

func (b *Bus[T]) warn(message string, fields map[string]string) {
	if b.logger != nil {
		b.logger.Warn(message, fields)
	}
}

func typeOf(event Event) string {
	if eventType := event.Type(); eventType != "" {
		return eventType
	}
	return "unknown"
}

type subscriber[T Event] struct {
	ch     chan T
	accept func(T) bool

	mu     sync.Mutex
	closed bool
}

// send reports false when the event could not be queued. Sends to a closed
// subscriber are discarded and count as delivered.
func (s *subscriber[T]) send(event T, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- event:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.ch <- event:
		return true
	case <-timer.C:
		return false
	}
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
