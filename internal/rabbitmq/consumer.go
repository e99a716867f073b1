package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"shortlink/internal/events"
	"shortlink/pkg/backoff"
)

// consumerPolicy bounds the relay's connect attempts. Exhaustion is fatal
// for the caller: a relay with no bus connection serves no purpose.
var consumerPolicy = backoff.Policy{
	Initial:     2 * time.Second,
	Max:         30 * time.Second,
	Multiplier:  1.5,
	MaxAttempts: 30,
}

const defaultPrefetch = 50

// Handler processes one delivery and is responsible for acking or
// rejecting it once processing completes.
type Handler func(d amqp.Delivery)

// Consumer owns a durable queue bound to the shared click exchange. Each
// relay instance gets its own queue, so independent consumers all see every
// event instead of competing for the same messages.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	logger   *zap.Logger
}

// NewConsumer creates a consumer for the given queue.
func NewConsumer(url, queue string, logger *zap.Logger) *Consumer {
	return &Consumer{
		url:      url,
		queue:    queue,
		prefetch: defaultPrefetch,
		logger:   logger,
	}
}

// Run consumes deliveries until ctx is cancelled, re-running the connect
// sequence whenever the connection drops. Already-aggregated state lives
// with the handler and survives reconnects. Run returns a non-nil error
// only when the retry budget is exhausted.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		var (
			conn       *amqp.Connection
			deliveries <-chan amqp.Delivery
		)

		err := consumerPolicy.Run(ctx, "rabbitmq consume", c.logger, func() error {
			var err error
			conn, deliveries, err = c.subscribe()
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rabbitmq: consume retries exhausted: %w", err)
		}

		c.logger.Info("consuming click events",
			zap.String("queue", c.queue),
			zap.Int("prefetch", c.prefetch),
		)

		c.drain(ctx, deliveries, handle)
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("bus connection lost, reconnecting")
	}
}

func (c *Consumer) subscribe() (*amqp.Connection, <-chan amqp.Delivery, error) {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	if err := ch.ExchangeDeclare(events.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, err
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, err
	}

	if err := ch.QueueBind(c.queue, events.RoutingKey, events.Exchange, false, nil); err != nil {
		conn.Close()
		return nil, nil, err
	}

	// Bounded prefetch caps in-flight unacknowledged work.
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		conn.Close()
		return nil, nil, err
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	return conn, deliveries, nil
}

// drain pumps deliveries to the handler until the channel closes or ctx is
// cancelled. One message at a time: the trending aggregate has exactly one
// writer.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			handle(d)
		}
	}
}
