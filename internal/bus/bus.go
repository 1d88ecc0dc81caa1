// Package bus carries change events between the sync service and local
// subscribers, and optionally across processes through Redis.
package bus

import (
	"sync"
	"time"

	"github.com/roach88/carta/internal/snapshot"
)

// Topics published after every successful write or adoption.
const (
	TopicPrices    = "prices-changed"
	TopicZones     = "zones-changed"
	TopicNovels    = "novels-changed"
	TopicFullState = "full-state-changed"
)

// AllTopics subscribes a handler to every topic.
const AllTopics = "*"

// Event is one change notification.
type Event struct {
	Topic            string           `json:"topic"`
	Payload          snapshot.Payload `json:"payload"`
	Timestamp        time.Time        `json:"timestamp"`
	SourceInstanceID string           `json:"source_instance_id"`
}

// Handler receives events. Handlers run synchronously on the publishing
// goroutine and must not block.
type Handler func(Event)

type subscription struct {
	id    uint64
	topic string
	fn    Handler
}

// Bus is an in-process publish/subscribe hub.
//
// Thread-safety: All methods are safe for concurrent use. A handler may
// subscribe or cancel from inside a delivery.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn for topic (or AllTopics) and returns a cancel func.
// Handlers are called in subscription order.
func (b *Bus) Subscribe(topic string, fn Handler) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, topic: topic, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers e to every matching subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic == e.Topic || s.topic == AllTopics {
			targets = append(targets, s.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(e)
	}
}
