package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_DeliversByTopicInOrder(t *testing.T) {
	b := New()
	var got []string

	b.Subscribe(TopicPrices, func(e Event) { got = append(got, "prices-1:"+e.Topic) })
	b.Subscribe(TopicZones, func(e Event) { got = append(got, "zones:"+e.Topic) })
	b.Subscribe(TopicPrices, func(e Event) { got = append(got, "prices-2:"+e.Topic) })
	b.Subscribe(AllTopics, func(e Event) { got = append(got, "all:"+e.Topic) })

	b.Publish(Event{Topic: TopicPrices})

	assert.Equal(t, []string{"prices-1:prices-changed", "prices-2:prices-changed", "all:prices-changed"}, got)
}

func TestBus_Cancel(t *testing.T) {
	b := New()
	calls := 0
	cancel := b.Subscribe(TopicFullState, func(Event) { calls++ })

	b.Publish(Event{Topic: TopicFullState})
	cancel()
	cancel() // idempotent
	b.Publish(Event{Topic: TopicFullState})

	assert.Equal(t, 1, calls)
}

func TestBus_HandlerMaySubscribeDuringDelivery(t *testing.T) {
	b := New()
	inner := 0
	b.Subscribe(TopicNovels, func(Event) {
		b.Subscribe(TopicNovels, func(Event) { inner++ })
	})

	b.Publish(Event{Topic: TopicNovels})
	assert.Equal(t, 0, inner, "new subscribers see only later events")

	b.Publish(Event{Topic: TopicNovels})
	assert.Equal(t, 1, inner)
}
