package processor

import (
	"sync"

	"github.com/smaq/smaq/internal/model"
)

// DefaultSubscriberBuffer is the channel buffer used when Subscribe is given
// a negative size.
const DefaultSubscriberBuffer = 64

// Broker delivers completions to subscribers over channels. It is safe for
// concurrent use.
//
// Publish blocks until every current subscriber has accepted the completion
// or unsubscribed. A subscriber that stops reading without unsubscribing
// stalls the publisher. Completions published before a subscription are not
// replayed.
type Broker struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID int
	closed bool
}

type subscription struct {
	id   int
	ch   chan model.Completion
	done chan struct{}
	once sync.Once
}

// NewBroker creates a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{}
}

// Subscribe registers a subscriber and returns its channel and an
// unsubscribe function. The channel is closed when the broker closes. If the
// broker is already closed the returned channel is closed immediately.
func (b *Broker) Subscribe(buffer int) (<-chan model.Completion, func()) {
	if buffer < 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.Completion, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	sub := &subscription{
		id:   b.nextID,
		ch:   ch,
		done: make(chan struct{}),
	}
	b.nextID++
	b.subs = append(b.subs, sub)

	return ch, func() {
		// Release a Publish blocked on this subscriber before taking the lock.
		sub.once.Do(func() { close(sub.done) })

		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers c to every subscriber in registration order.
func (b *Broker) Publish(c model.Completion) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- c:
		case <-sub.done:
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later Subscribe calls return a
// closed channel and Publish becomes a no-op.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
