// Package channel provides the topic-keyed publish/subscribe primitive the
// store engine is built on.
//
// A Channel maps topics to ordered listener lists. Emit is synchronous: it
// returns only after every listener registered for the topic at the moment
// of the call has run. Listeners may subscribe, unsubscribe, or emit from
// inside a callback; no lock is held while they execute.
//
//	ch := channel.New[string]()
//	id := ch.Subscribe("greeting", func(ctx context.Context, msg string) {
//	    fmt.Println(msg)
//	})
//	ch.Emit(ctx, "greeting", "hello")
//	ch.Unsubscribe(id)
package channel

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// SubscriptionID identifies a single registration. IDs are UUIDv7 strings.
type SubscriptionID string

// Listener receives the data emitted on a topic.
type Listener[T any] func(ctx context.Context, data T)

type subscription[T any] struct {
	id     SubscriptionID
	topic  string
	fn     Listener[T]
	active atomic.Bool
}

// Channel is a topic-keyed multimap of listeners carrying payloads of type T.
// It is safe for concurrent use.
type Channel[T any] struct {
	topics  map[string][]*subscription[T]
	byID    map[SubscriptionID]*subscription[T]
	mu      sync.RWMutex
	metrics *Metrics
}

// New returns an empty Channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{
		topics:  make(map[string][]*subscription[T]),
		byID:    make(map[SubscriptionID]*subscription[T]),
		metrics: NewMetrics(),
	}
}

// Subscribe registers fn under topic. Subscribing never fails.
func (c *Channel[T]) Subscribe(topic string, fn Listener[T]) SubscriptionID {
	sub := &subscription[T]{
		id:    SubscriptionID(uuid.Must(uuid.NewV7()).String()),
		topic: topic,
		fn:    fn,
	}
	sub.active.Store(true)

	c.mu.Lock()
	c.topics[topic] = append(c.topics[topic], sub)
	c.byID[sub.id] = sub
	c.mu.Unlock()

	c.metrics.RecordSubscription(1)
	return sub.id
}

// Unsubscribe removes a registration. Unknown or already removed ids are
// ignored. A listener removed while an Emit is in progress is not invoked
// by the remainder of that Emit.
func (c *Channel[T]) Unsubscribe(id SubscriptionID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, exists := c.byID[id]
	if !exists {
		return
	}
	delete(c.byID, id)
	sub.active.Store(false)

	subs := c.topics[sub.topic]
	if i := slices.Index(subs, sub); i >= 0 {
		subs = slices.Delete(subs, i, i+1)
	}
	if len(subs) == 0 {
		delete(c.topics, sub.topic)
	} else {
		c.topics[sub.topic] = subs
	}

	c.metrics.RecordSubscription(-1)
}

// Emit invokes every listener of topic, in registration order, and returns
// the number of listeners invoked. Emitting to a topic without listeners is
// a no-op.
func (c *Channel[T]) Emit(ctx context.Context, topic string, data T) int {
	c.mu.RLock()
	subs := slices.Clone(c.topics[topic])
	c.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		sub.fn(ctx, data)
		delivered++
	}

	c.metrics.RecordEmit(delivered)
	return delivered
}

// ListenerCount returns the number of listeners registered for topic.
func (c *Channel[T]) ListenerCount(topic string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.topics[topic])
}

// Topics returns the topics that currently have listeners, in no
// particular order.
func (c *Channel[T]) Topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	return topics
}

// Metrics returns a snapshot of the channel's counters.
func (c *Channel[T]) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}
