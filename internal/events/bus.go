package events

import (
	"log/slog"
	"sync"
)

// subscriberBufferSize is the per-subscriber channel capacity. Chosen to
// absorb a burst of progress events from a handful of concurrent
// transfers without blocking the emitting goroutine under normal load.
const subscriberBufferSize = 256

// Bus fans a stream of Events out to any number of subscribers. Producers
// call Publish; a full subscriber channel drops the event rather than
// block the producer.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	logger      *slog.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		subscribers: make(map[int]chan Event),
		logger:      logger,
	}
}

// Subscribe registers a new subscriber and returns its event channel and
// an unsubscribe function. The caller must call unsubscribe when done
// reading, or the channel leaks.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, subscriberBufferSize)
	b.subscribers[id] = ch

	return ch, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Publish sends ev to every current subscriber without blocking. If a
// subscriber's channel is full, the event is dropped for that subscriber
// and logged at Warn — the periodic safety scan and reconcile passes
// provide eventual consistency for anything a dropped event would have
// conveyed.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("event channel full, dropping event", slog.Int("subscriber", id))
		}
	}
}

// SubscriberCount reports the current number of subscribers, for tests
// and diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subscribers)
}
