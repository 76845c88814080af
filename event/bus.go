package event

import (
	"log/slog"
	"sync"

	"github.com/funkyflowstudios/synapse-hub-sub000/metric"
)

// Handler consumes events delivered to a subscription. Handlers run on
// the subscription's own goroutine and may block without affecting the
// publisher or other subscribers.
type Handler func(Event)

// Filter restricts which events a subscription receives. Zero-value
// fields match everything.
type Filter struct {
	Family      Family
	ConnectorID string
	StreamID    string // telemetry only
}

func (f Filter) matches(e Event) bool {
	if f.Family != "" && e.Family() != f.Family {
		return false
	}
	if f.ConnectorID != "" && e.Connector() != f.ConnectorID {
		return false
	}
	if f.StreamID != "" {
		t, ok := e.(TelemetryReceived)
		if !ok || t.StreamID != f.StreamID {
			return false
		}
	}
	return true
}

// SubscriptionID identifies an active subscription on a Bus.
type SubscriptionID uint64

type subscriber struct {
	id      SubscriptionID
	filter  Filter
	queue   chan Event
	done    chan struct{}
	dropped uint64
}

// Bus fans events out to subscribers. Publish never blocks: each
// subscriber has a bounded queue, and when a queue is full the event is
// dropped for that subscriber only.
type Bus struct {
	mu        sync.RWMutex
	subs      map[SubscriptionID]*subscriber
	nextID    SubscriptionID
	queueSize int
	closed    bool
	wg        sync.WaitGroup

	logger  *slog.Logger
	metrics *metric.Metrics
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusMetrics records published and dropped event counts.
func WithBusMetrics(m *metric.Metrics) BusOption {
	return func(b *Bus) { b.metrics = m }
}

// WithBusLogger sets the logger used for drop warnings.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// NewBus creates a bus whose subscribers each get a queue of queueSize
// events. A queueSize below 1 is raised to 1.
func NewBus(queueSize int, opts ...BusOption) *Bus {
	if queueSize < 1 {
		queueSize = 1
	}
	b := &Bus{
		subs:      make(map[SubscriptionID]*subscriber),
		queueSize: queueSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for events matching filter and returns the
// subscription's ID. The handler runs on a dedicated goroutine until
// Unsubscribe or Close.
func (b *Bus) Subscribe(filter Filter, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{
		id:     b.nextID,
		filter: filter,
		queue:  make(chan Event, b.queueSize),
		done:   make(chan struct{}),
	}
	if b.closed {
		close(sub.done)
		return sub.id
	}
	b.subs[sub.id] = sub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case e := <-sub.queue:
				handler(e)
			case <-sub.done:
				// Drain what was queued before shutdown.
				for {
					select {
					case e := <-sub.queue:
						handler(e)
					default:
						return
					}
				}
			}
		}
	}()
	return sub.id
}

// Unsubscribe removes a subscription. Queued events are still delivered
// before the handler goroutine exits. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// Publish delivers e to every matching subscriber without blocking.
// Subscribers whose queues are full miss the event and the drop is
// counted and logged.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	family := string(e.Family())
	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(family).Inc()
	}
	for _, sub := range b.subs {
		if !sub.filter.matches(e) {
			continue
		}
		select {
		case sub.queue <- e:
		default:
			sub.dropped++
			if b.metrics != nil {
				b.metrics.EventsDropped.WithLabelValues(family).Inc()
			}
			b.logger.Warn("slow subscriber, event dropped",
				"subscription", sub.id,
				"family", family,
				"connector", e.Connector(),
				"dropped_total", sub.dropped)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops all subscriptions and waits for queued events to drain.
// Publish becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[SubscriptionID]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	b.wg.Wait()
}
