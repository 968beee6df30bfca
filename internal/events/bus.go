package events

import (
	"log"
	"sync"
	"sync/atomic"
)

// DefaultSubscriberBuffer is the channel depth given to subscribers that do
// not ask for a specific one.
const DefaultSubscriberBuffer = 256

// Bus fans events out to any number of subscribers. Publishing never blocks:
// a subscriber whose channel is full misses the event and the drop is
// counted. Consumers that must not miss events size their buffer
// accordingly.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool

	dropped atomic.Uint64
}

var _ Sink = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. A non-positive buffer selects
// DefaultSubscriberBuffer. The channel is closed on unsubscribe or when the
// bus closes.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Emit delivers an event to every subscriber without blocking. Events to
// full subscribers are dropped and counted.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			count := b.dropped.Add(1)
			if count%10 == 1 { // Log every 10th drop to avoid spam
				log.Printf("[events] WARNING: subscriber buffer full, dropped event (total dropped: %d): type=%s", count, event.EventType())
			}
		}
	}
}

// Dropped returns how many deliveries have been dropped since creation.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Safe to call more than once;
// emissions after Close are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
