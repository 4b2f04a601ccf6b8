package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Hub manages the set of WebSocket feed connections and broadcasts each
// payload to all of them. Per-client send queues are bounded; a client whose
// queue is full is evicted rather than allowed to slow anyone else down.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	sendBuffer int
	mu         sync.RWMutex
	logger     *zap.Logger
}

// DefaultSendBuffer is the per-client outbound queue size.
const DefaultSendBuffer = 256

// NewHub creates a new Hub. sendBuffer is the per-client queue bound; values
// below 1 fall back to DefaultSendBuffer.
func NewHub(sendBuffer int, logger *zap.Logger) *Hub {
	if sendBuffer < 1 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// Run processes registration state changes. Call this in a goroutine.
// Returns when context is cancelled, after closing every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("connID", client.connID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("connID", client.connID))
		}
	}
}

// shutdown closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.done)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Broadcast sends payload to every registered client. The read lock is held
// across the sends: queue closes happen under the write lock, so a client
// cannot be closed mid-broadcast. Each send is non-blocking, and a client
// with a full queue is evicted.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	var evicted []*Client
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			evicted = append(evicted, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range evicted {
		h.logger.Warn("client queue full, evicting", zap.String("connID", client.connID))
		go h.Deregister(client)
	}
}

// Deregister removes a client from the broadcast set and closes its queue.
// Idempotent: removing an already-removed client is a no-op. Safe to call
// after the hub has shut down.
func (h *Hub) Deregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
