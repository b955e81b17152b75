// Package bus is the in-process publish/subscribe mechanism connecting the
// aggregation engine and ingestion sources to delivery. Fan-out is
// synchronous at publish time: handlers run on the publisher's goroutine, in
// registration order, with no persistence and no replay for subscribers that
// were not registered at publish time.
package bus

import (
	"sync"

	"netwatch/internal/model"
)

// Handler receives every published event.
type Handler func(ev model.Event)

type subscription struct {
	id      int64
	handler Handler
}

// Bus fans events out to all registered subscribers. It is safe for
// concurrent use; the subscriber list is iterated under a read lock so
// registration during a publish does not corrupt the iteration.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler and returns a function that removes it.
// Handlers are invoked in registration order.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every currently registered subscriber before
// returning. A handler that blocks delays the publisher; handlers that need
// asynchrony must provide it themselves.
func (b *Bus) Publish(ev model.Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(ev)
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
