package ws

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Message is one named event pushed to subscribers.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub fans messages out to all connected subscribers. Broadcasts are
// delivered in the order they are made; there is no backlog or replay for
// reconnecting subscribers beyond the snapshot pushed on connect.
type Hub struct {
	logger   *zap.Logger
	snapshot func() Message

	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	clients    map[*Client]struct{}
	count      atomic.Int64
}

// NewHub creates a hub. snapshot builds the message pushed to every new
// subscriber so late joiners see current state immediately.
func NewHub(logger *zap.Logger, snapshot func() Message) *Hub {
	return &Hub{
		logger:     logger,
		snapshot:   snapshot,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Add(1)
			h.logger.Debug("subscriber connected", zap.Int64("connections", h.count.Load()))
			if h.snapshot != nil {
				select {
				case c.send <- h.snapshot():
				default:
					h.drop(c)
				}
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Debug("subscriber disconnected", zap.Int64("connections", h.count.Load()))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow subscriber; drop it rather than buffer a backlog.
					h.drop(c)
				}
			}
		}
	}
}

// Broadcast queues msg for every connected subscriber. Once the hub has
// stopped the message is dropped, so callers racing shutdown never block.
func (h *Hub) Broadcast(event string, data any) {
	select {
	case h.broadcast <- Message{Event: event, Data: data}:
	case <-h.done:
	}
}

// Connections reports the current subscriber count.
func (h *Hub) Connections() int64 {
	return h.count.Load()
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
}
