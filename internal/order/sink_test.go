package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carta/internal/testutil"
)

type fakeChannel struct {
	declared   []string
	durable    bool
	published  []amqp.Publishing
	routingKey string
	publishErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	f.durable = durable
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.routingKey = key
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newFakeSink(ch *fakeChannel) (*AMQPSink, *bool) {
	connClosed := false
	s := NewAMQPSink("amqp://test", "")
	s.now = testutil.NewManualClock(testutil.Epoch).Now
	s.dial = func(string) (channel, func() error, error) {
		return ch, func() error { connClosed = true; return nil }, nil
	}
	return s, &connClosed
}

func sampleOrder() Order {
	return Order{ID: "TV-1", Customer: customer, DeliveryType: Pickup, ZoneName: PickupName, Total: 80}
}

func TestAMQPSink_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	s, connClosed := newFakeSink(ch)

	require.NoError(t, s.Submit(context.Background(), sampleOrder()))

	assert.Equal(t, []string{DefaultQueue}, ch.declared)
	assert.True(t, ch.durable)
	assert.Equal(t, DefaultQueue, ch.routingKey)
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "TV-1", msg.MessageId)
	assert.Equal(t, testutil.Epoch, msg.Timestamp)

	var got Order
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, "TV-1", got.ID)
	assert.Equal(t, int64(80), got.Total)

	assert.True(t, ch.closed)
	assert.True(t, *connClosed)
}

func TestAMQPSink_PublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	s, _ := newFakeSink(ch)

	err := s.Submit(context.Background(), sampleOrder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish order TV-1")
	assert.True(t, ch.closed)
}

func TestAMQPSink_DialError(t *testing.T) {
	s := NewAMQPSink("amqp://test", "custom.orders")
	s.dial = func(string) (channel, func() error, error) {
		return nil, nil, errors.New("connection refused")
	}

	err := s.Submit(context.Background(), sampleOrder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "custom.orders", s.Queue())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, s.Submit(context.Background(), sampleOrder()))
	assert.Contains(t, buf.String(), "order submitted")
	assert.Contains(t, buf.String(), "order=TV-1")
	assert.Contains(t, buf.String(), "total=80")
}

func TestMemorySink(t *testing.T) {
	var s MemorySink
	require.NoError(t, s.Submit(context.Background(), sampleOrder()))

	s.SetError(errors.New("down"))
	assert.EqualError(t, s.Submit(context.Background(), sampleOrder()), "down")

	s.SetError(nil)
	got := s.Orders()
	require.Len(t, got, 1)
	assert.Equal(t, "TV-1", got[0].ID)
}
