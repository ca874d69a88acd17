package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message is the envelope for every event pushed over the websocket.
type Message struct {
	Type      string      `json:"type"` // e.g. "crawl.progress", "crawl.completed"
	RunID     uuid.UUID   `json:"run_id"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The endpoint sits behind token auth at the routing layer; browsers of
	// any origin may subscribe.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is a middleman between one websocket connection and the hub.
type client struct {
	hub *Hub
	// The websocket connection.
	conn *websocket.Conn
	// Buffered channel of outbound messages.
	send chan []byte
}

// Hub fans crawl events out to every connected websocket client. The client
// map is owned by the Run goroutine; registration and broadcast both go
// through its channels.
type Hub struct {
	logger *slog.Logger

	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

// NewHub creates a websocket hub. Call Run before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
	}
}

// Run owns the client set until ctx is cancelled. On shutdown every client's
// send channel is closed, which makes its write pump close the connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Client cannot keep up, drop it.
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Broadcast sends a typed message to all connected clients. The send never
// blocks; with no running hub or a full buffer the event is dropped.
func (h *Hub) Broadcast(msgType string, runID uuid.UUID, payload interface{}) {
	msg := Message{
		Type:      msgType,
		RunID:     runID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	bytes, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal websocket message",
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
		return
	}

	select {
	case h.broadcast <- bytes:
	default:
		h.logger.Warn("Websocket broadcast buffer full, event dropped",
			slog.String("type", msgType),
		)
	}
}

// ServeWs upgrades an HTTP request to a websocket subscription.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket",
			slog.String("error", err.Error()),
		)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	select {
	case c.hub.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump drains the connection so close frames are processed; inbound
// payloads are ignored.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Websocket client closed unexpectedly",
					slog.String("error", err.Error()),
				)
			}
			break
		}
	}
}

// writePump forwards hub messages to the connection, one frame per message.
func (c *client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	// The hub closed the channel.
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
