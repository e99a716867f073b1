package relay

import (
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"shortlink/internal/events"
	"shortlink/internal/trending"
)

const (
	// EventClick names the raw click broadcast.
	EventClick = "click_event"

	// EventTrending names the Top-N snapshot broadcast.
	EventTrending = "trending_update"
)

// Broadcaster fans named events out to all live subscribers.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// TrendingPayload is the data of every trending_update broadcast.
type TrendingPayload struct {
	Trending []trending.Entry `json:"trending"`
}

// Relay turns consumed click events into aggregate updates and subscriber
// broadcasts.
type Relay struct {
	agg    *trending.Aggregator
	hub    Broadcaster
	limit  int
	logger *zap.Logger
}

// New creates a relay over the given aggregator and broadcaster.
func New(agg *trending.Aggregator, hub Broadcaster, limit int, logger *zap.Logger) *Relay {
	if limit <= 0 {
		limit = trending.DefaultLimit
	}
	return &Relay{
		agg:    agg,
		hub:    hub,
		limit:  limit,
		logger: logger,
	}
}

// HandleDelivery processes one bus message: parse, count, broadcast the
// raw event, broadcast the fresh snapshot, then ack. A crash before the
// ack causes redelivery, and the duplicate count that follows is the
// accepted cost of at-least-once delivery.
func (r *Relay) HandleDelivery(d amqp.Delivery) {
	var event events.ClickEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		r.logger.Warn("malformed click event, rejecting", zap.Error(err))
		// No requeue: a payload that failed to parse once fails forever.
		if err := d.Reject(false); err != nil {
			r.logger.Warn("failed to reject message", zap.Error(err))
		}
		return
	}

	r.agg.Record(event.ShortCode)

	if event.Country == "" {
		event.Country = "unknown"
	}
	r.hub.Broadcast(EventClick, event)
	r.hub.Broadcast(EventTrending, TrendingPayload{Trending: r.agg.Top(r.limit)})

	if err := d.Ack(false); err != nil {
		r.logger.Warn("failed to ack message", zap.Error(err))
	}

	r.logger.Debug("click event processed", zap.String("short_code", event.ShortCode))
}
