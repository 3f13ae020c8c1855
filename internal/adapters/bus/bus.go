// Package bus fans events out to a dynamic set of subscribers.
//
// Each subscriber owns an independent bounded queue. Publish never blocks:
// when a subscriber's queue is full the oldest queued event is dropped to
// make room (drop-oldest policy) and the subscriber's drop counter is
// incremented. A slow WebSocket session therefore loses its own oldest
// events instead of stalling ingestion or other subscribers.
package bus

import (
	"sync"
	"sync/atomic"

	"mmdvmstate/internal/domain/model"
	"mmdvmstate/pkg/metrics"
)

const defaultQueueSize = 64

// Subscription is one subscriber's handle on the bus.
type Subscription struct {
	id      uint64
	ch      chan model.Event
	dropped atomic.Int64
}

// Events returns the subscriber's delivery channel. It is closed on
// Unsubscribe or when the bus shuts down.
func (s *Subscription) Events() <-chan model.Event {
	return s.ch
}

// Dropped reports how many events were discarded for this subscriber.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Bus delivers published events to every registered subscriber.
type Bus struct {
	mu        sync.RWMutex
	subs      map[uint64]*Subscription
	nextID    uint64
	queueSize int
	closed    bool

	// dropped survives unsubscribes; it feeds the health endpoint.
	dropped atomic.Int64
}

// Option applies a configuration option to the Bus.
type Option func(*Bus)

// WithQueueSize bounds each subscriber's queue.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[uint64]*Subscription),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber. It returns nil after Close.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.nextID++
	sub := &Subscription{
		id: b.nextID,
		ch: make(chan model.Event, b.queueSize),
	}
	b.subs[sub.id] = sub
	metrics.UpdateSubscribers(len(b.subs))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// concurrently with Publish and more than once for the same subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
	metrics.UpdateSubscribers(len(b.subs))
}

// Publish delivers ev to every current subscriber without blocking.
func (b *Bus) Publish(ev model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	metrics.RecordEventPublished()
	for _, sub := range b.subs {
		for {
			select {
			case sub.ch <- ev:
			default:
				// Queue full: evict the oldest and retry once. The
				// receive can race the subscriber draining its own
				// channel, so loop until the send lands.
				select {
				case <-sub.ch:
					sub.dropped.Add(1)
					b.dropped.Add(1)
					metrics.RecordEventDropped()
				default:
				}
				continue
			}
			break
		}
	}
}

// Dropped reports the total events discarded across all subscribers,
// including ones that have since unsubscribed.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// SubscriberCount reports the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down and closes every subscriber channel. No events
// are delivered after Close returns.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	metrics.UpdateSubscribers(0)
}
