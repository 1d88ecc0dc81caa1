package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel shared by all instances.
const DefaultChannel = "carta:state"

// Notifier is told that another instance has written shared state.
type Notifier interface {
	Notify(reason string)
}

// publisher is the subset of *redis.Client used to forward events.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// envelope is the wire form of a relayed event. The payload itself stays
// in the shared store; receivers re-read it.
type envelope struct {
	Topic            string    `json:"topic"`
	Timestamp        time.Time `json:"timestamp"`
	SourceInstanceID string    `json:"source_instance_id"`
}

// RedisRelay forwards locally originated full-state events to a Redis
// channel and turns messages from other instances into Notify calls. It is
// a faster alternative to waiting for the store watch or the poll tick.
type RedisRelay struct {
	client     *redis.Client
	pub        publisher
	channel    string
	instanceID string
	notifier   Notifier
	logger     *slog.Logger
}

// NewRedisRelay creates a relay. An empty channel uses DefaultChannel.
func NewRedisRelay(client *redis.Client, channel, instanceID string, n Notifier) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{
		client:     client,
		pub:        client,
		channel:    channel,
		instanceID: instanceID,
		notifier:   n,
		logger:     slog.Default().With("component", "redis-relay", "channel", channel),
	}
}

// Attach forwards this instance's full-state events published on b.
// Events adopted from other instances are not forwarded again. Forwarding
// runs on its own goroutine so the publisher never waits on the network.
func (r *RedisRelay) Attach(b *Bus) (cancel func()) {
	return b.Subscribe(TopicFullState, func(e Event) {
		if e.SourceInstanceID != r.instanceID {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.Forward(ctx, e); err != nil {
				r.logger.Warn("forward failed", "error", err)
			}
		}()
	})
}

// Forward publishes e to the Redis channel.
func (r *RedisRelay) Forward(ctx context.Context, e Event) error {
	data, err := json.Marshal(envelope{
		Topic:            e.Topic,
		Timestamp:        e.Timestamp,
		SourceInstanceID: e.SourceInstanceID,
	})
	if err != nil {
		return fmt.Errorf("forward: marshal: %w", err)
	}
	if err := r.pub.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("forward: publish: %w", err)
	}
	return nil
}

// Run subscribes to the channel and blocks until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis relay: no client")
	}
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis relay: subscribe: %w", err)
	}
	r.logger.Info("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.logger.Debug("ignoring malformed message", "error", err)
		return
	}
	if env.SourceInstanceID == r.instanceID {
		return
	}
	r.notifier.Notify("redis:" + env.SourceInstanceID)
}
