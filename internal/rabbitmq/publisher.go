package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"shortlink/internal/events"
	"shortlink/pkg/backoff"
)

// publisherPolicy bounds one connect sequence. On exhaustion the publisher
// logs and starts the sequence over, so it keeps retrying in the background
// for as long as the service runs.
var publisherPolicy = backoff.Policy{
	Initial:     5 * time.Second,
	Max:         30 * time.Second,
	Multiplier:  1.5,
	MaxAttempts: 10,
}

// Publisher maintains a background connection to the bus and publishes
// click events fire-and-forget. A publish attempted while disconnected is
// logged and dropped; there is no outbound queue.
type Publisher struct {
	url    string
	logger *zap.Logger

	mu   sync.RWMutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher creates a publisher for the given bus URL.
func NewPublisher(url string, logger *zap.Logger) *Publisher {
	return &Publisher{url: url, logger: logger}
}

// Start launches the connect/reconnect loop and returns immediately; the
// redirect service is usable before the bus connection is up.
func (p *Publisher) Start(ctx context.Context) {
	go p.connectLoop(ctx)
}

func (p *Publisher) connectLoop(ctx context.Context) {
	for {
		err := publisherPolicy.Run(ctx, "rabbitmq connect", p.logger, p.connect)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("bus connect attempts exhausted, starting over", zap.Error(err))
			continue
		}

		p.logger.Info("connected to rabbitmq")

		p.mu.RLock()
		closed := p.conn.NotifyClose(make(chan *amqp.Error, 1))
		p.mu.RUnlock()

		select {
		case <-ctx.Done():
			p.close()
			return
		case amqpErr := <-closed:
			p.logger.Warn("bus connection lost, reconnecting", zap.Error(amqpErr))
			p.clear()
		}
	}
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(events.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return err
	}

	p.mu.Lock()
	p.conn, p.ch = conn, ch
	p.mu.Unlock()
	return nil
}

// Publish sends one click event with persistent delivery. Failures are
// logged and the event is discarded; the caller never sees them.
func (p *Publisher) Publish(event events.ClickEvent) {
	p.mu.RLock()
	ch := p.ch
	p.mu.RUnlock()

	if ch == nil {
		p.logger.Warn("bus not connected, dropping click event",
			zap.String("short_code", event.ShortCode),
		)
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal click event", zap.Error(err))
		return
	}

	err = ch.PublishWithContext(context.Background(), events.Exchange, events.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		p.logger.Warn("failed to publish click event",
			zap.String("short_code", event.ShortCode),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("published click event", zap.String("short_code", event.ShortCode))
}

func (p *Publisher) clear() {
	p.mu.Lock()
	p.conn, p.ch = nil, nil
	p.mu.Unlock()
}

func (p *Publisher) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}
