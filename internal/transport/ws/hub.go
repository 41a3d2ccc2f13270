package ws

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

const broadcastBuffer = 64

// Hub tracks connected clients and fans outbound frames out to them. The
// client set is owned by the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
	logger     *zap.Logger
}

func newHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			h.logger.Info("client registered", zap.String("client_id", client.id))

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.logger.Info("client unregistered", zap.String("client_id", client.id))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.enqueue(message) {
					h.drop(client)
					h.logger.Warn("dropped slow client", zap.String("client_id", client.id))
				}
			}
		}
	}
}

// Broadcast queues message for every client without blocking. It reports
// false when the hub is backed up and the frame was discarded.
func (h *Hub) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		h.logger.Debug("broadcast queue full, frame discarded")
		return false
	}
}

// join registers client; it reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	h.count.Store(int64(len(h.clients)))
	client.close()
}
