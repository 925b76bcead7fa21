// Package events provides the in-process event feed connecting the escrow
// core to the analysis worker and the WebSocket stream.
package events

import "sync"

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts dropping events rather than blocking the
// publisher.
const subscriberBuffer = 64

// Feed is a fan-out broadcaster. Publish never blocks: events are delivered
// to each subscriber's buffered channel, and dropped for subscribers whose
// buffer is full.
type Feed struct {
	mu   sync.Mutex
	subs map[int]chan any
	next int
}

// NewFeed creates an empty Feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan any)}
}

// Subscribe registers a new subscriber and returns its channel together with
// a cancel function. Cancel closes the channel; callers must stop reading
// after cancelling.
func (f *Feed) Subscribe() (<-chan any, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan any, subscriberBuffer)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every current subscriber without blocking.
func (f *Feed) Publish(ev any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is too slow; drop rather than stall settlement.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
