package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. The feed is server-push only,
	// so anything larger than a control frame is already suspect.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Viewers connect from anywhere
}

// PredictFunc computes the one-shot payload sent to each new client before
// any telemetry. The returned value must be JSON-serializable.
type PredictFunc func(ctx context.Context) (any, error)

// Client represents one WebSocket feed connection. Owned by the Hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	connID string
	logger *zap.Logger
}

// HandleFeed upgrades the connection and brings it into the broadcast set.
// The prediction payload is computed synchronously and queued as the very
// first message, before registration, so it always precedes telemetry. A
// prediction failure is non-fatal: the client gets an error message instead
// and still receives the feed.
func (h *Hub) HandleFeed(predict PredictFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, h.sendBuffer),
			connID: uuid.New().String(),
			logger: h.logger,
		}

		h.logger.Info("client connected",
			zap.String("connID", client.connID),
			zap.String("remoteAddr", r.RemoteAddr),
		)

		if predict != nil {
			first, err := marshalPrediction(r.Context(), predict)
			if err != nil {
				h.logger.Warn("prediction failed",
					zap.String("connID", client.connID),
					zap.Error(err),
				)
				first = marshalError("prediction unavailable")
			}
			client.send <- first
		}

		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump drains the connection. No client messages are expected; whatever
// arrives is discarded. Its real job is running the pong handler and
// noticing the peer going away.
func (c *Client) readPump() {
	defer func() {
		c.hub.Deregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

// writePump writes queued messages to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the queue: evicted or shutting down
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
