package events

import (
	"strings"
	"sync"
)

// DefaultBufSize is the subscriber channel buffer used when the caller does
// not pick one.
const DefaultBufSize = 256

// Bus is a channel-based pub-sub fabric for engine lifecycle events.
// Publishing never blocks: a subscriber that falls behind loses events
// rather than stalling the run.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	closed bool
}

type subscription struct {
	topics map[string]bool // nil means every topic
	ch     chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving events published to the named
// topics, or to every topic when none are named. bufSize <= 0 selects
// DefaultBufSize. Subscribing to a closed bus returns an already-closed
// channel.
func (b *Bus) Subscribe(bufSize int, topics ...string) <-chan Event {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	sub := &subscription{ch: ch}
	if len(topics) > 0 {
		sub.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}
	b.subs = append(b.subs, sub)

	return ch
}

// Publish delivers the event to every matching subscriber. Non-blocking: a
// full subscriber channel drops this event for that subscriber only.
func (b *Bus) Publish(event Event) {
	topic := TopicOf(event)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.topics != nil && !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber is full, drop
		}
	}
}

// Close closes the bus and every subscriber channel. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subs {
		close(sub.ch)
	}
}

// TopicOf maps an event to its topic: the kind up to the first dot, so
// "task.completed" publishes on "task".
func TopicOf(e Event) string {
	kind := e.Kind()
	if i := strings.IndexByte(kind, '.'); i > 0 {
		return kind[:i]
	}
	return kind
}
