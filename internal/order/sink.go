package order

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue orders are published to.
const DefaultQueue = "orders.submitted"

// Sink receives finished orders.
type Sink interface {
	Submit(ctx context.Context, o Order) error
}

// channel is the subset of *amqp.Channel used by AMQPSink.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, func() error, error)

// AMQPSink publishes orders as persistent JSON messages to a RabbitMQ queue.
//
// Each Submit dials, publishes and closes its own connection.
type AMQPSink struct {
	url   string
	queue string
	dial  dialFunc
	now   func() time.Time
}

// NewAMQPSink creates a sink for the broker at url. An empty queue means
// DefaultQueue.
func NewAMQPSink(url, queue string) *AMQPSink {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPSink{url: url, queue: queue, dial: dialAMQP, now: time.Now}
}

func dialAMQP(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn.Close, nil
}

// Queue returns the queue name.
func (s *AMQPSink) Queue() string {
	return s.queue
}

// Submit declares the queue and publishes o to it.
func (s *AMQPSink) Submit(ctx context.Context, o Order) error {
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.ID, err)
	}

	ch, closeConn, err := s.dial(s.url)
	if err != nil {
		return fmt.Errorf("submit order %s: %w", o.ID, err)
	}
	defer func() {
		_ = ch.Close()
		if closeConn != nil {
			_ = closeConn()
		}
	}()

	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", s.queue, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    o.ID,
		Timestamp:    s.now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", s.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish order %s: %w", o.ID, err)
	}
	return nil
}

// LogSink writes orders to a structured logger. Used when no broker is
// configured.
type LogSink struct {
	Logger *slog.Logger
}

// Submit logs o at info level.
func (s LogSink) Submit(ctx context.Context, o Order) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "order submitted",
		"order", o.ID,
		"customer", o.Customer.FullName,
		"delivery", o.DeliveryType,
		"zone", o.ZoneName,
		"lines", len(o.Lines),
		"total", o.Total,
	)
	return nil
}

// MemorySink keeps submitted orders in memory.
//
// Thread-safety: safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	orders []Order
	err    error
}

// SetError makes subsequent submissions fail with err. nil restores normal
// behavior.
func (s *MemorySink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Submit records o.
func (s *MemorySink) Submit(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.orders = append(s.orders, o)
	return nil
}

// Orders returns a copy of the submitted orders in submission order.
func (s *MemorySink) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out
}
