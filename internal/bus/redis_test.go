package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	messages [][]byte
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.messages = append(f.messages, message.([]byte))
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	}
	return cmd
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type recordingNotifier struct {
	reasons []string
}

func (n *recordingNotifier) Notify(reason string) {
	n.reasons = append(n.reasons, reason)
}

func newTestRelay(pub publisher, n Notifier) *RedisRelay {
	return &RedisRelay{
		pub:        pub,
		channel:    DefaultChannel,
		instanceID: "instance-a",
		notifier:   n,
		logger:     slog.Default(),
	}
}

func TestRedisRelay_ForwardsOnlyLocalFullState(t *testing.T) {
	pub := &fakePublisher{}
	relay := newTestRelay(pub, &recordingNotifier{})
	b := New()
	cancel := relay.Attach(b)
	defer cancel()

	ts := time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)
	b.Publish(Event{Topic: TopicFullState, Timestamp: ts, SourceInstanceID: "instance-a"})
	b.Publish(Event{Topic: TopicFullState, Timestamp: ts, SourceInstanceID: "instance-b"})
	b.Publish(Event{Topic: TopicPrices, Timestamp: ts, SourceInstanceID: "instance-a"})

	require.Eventually(t, func() bool { return pub.count() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, pub.count())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, DefaultChannel, pub.channels[0])

	var env envelope
	require.NoError(t, json.Unmarshal(pub.messages[0], &env))
	assert.Equal(t, TopicFullState, env.Topic)
	assert.Equal(t, "instance-a", env.SourceInstanceID)
	assert.True(t, env.Timestamp.Equal(ts))
}

func TestRedisRelay_ForwardError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	relay := newTestRelay(pub, &recordingNotifier{})

	err := relay.Forward(context.Background(), Event{Topic: TopicFullState})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisRelay_HandleNotifiesForOtherInstances(t *testing.T) {
	n := &recordingNotifier{}
	relay := newTestRelay(&fakePublisher{}, n)

	relay.handle(`{"topic":"full-state-changed","source_instance_id":"instance-b"}`)
	relay.handle(`{"topic":"full-state-changed","source_instance_id":"instance-a"}`)
	relay.handle(`not json`)

	assert.Equal(t, []string{"redis:instance-b"}, n.reasons)
}

func TestRedisRelay_RunWithoutClient(t *testing.T) {
	relay := newTestRelay(&fakePublisher{}, &recordingNotifier{})
	assert.Error(t, relay.Run(context.Background()))
}
