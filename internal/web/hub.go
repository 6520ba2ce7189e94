// Package web serves the live dashboard: a websocket feed of catalog
// snapshots and notifications, a JSON snapshot endpoint and Prometheus
// metrics.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/notification"
	"vmdash.io/vmdash/internal/pkg/logger"
)

// Message types pushed to websocket clients.
const (
	MessageSnapshot     = "snapshot"
	MessageNotification = "notification"
	MessageDismissed    = "dismissed"
)

const (
	writeWait       = 10 * time.Second
	broadcastBuffer = 256
)

// Message is the websocket frame payload.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Dismissal is the data of a MessageDismissed frame.
type Dismissal struct {
	ID     string                     `json:"id"`
	Reason notification.RemovalReason `json:"reason"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans messages out to every connected websocket client. It is also a
// notification.Sink.
type Hub struct {
	upgrader  websocket.Upgrader
	greeting  func() []Message
	clients   map[*client]struct{}
	clientsMu sync.RWMutex
	broadcast chan []byte
	log       *zap.Logger
}

// NewHub creates a hub. checkOrigin may be nil to accept same-host requests
// only; greeting returns the frames sent to a client right after it connects.
func NewHub(checkOrigin func(r *http.Request) bool, greeting func() []Message) *Hub {
	return &Hub{
		upgrader:  websocket.Upgrader{CheckOrigin: checkOrigin},
		greeting:  greeting,
		clients:   make(map[*client]struct{}),
		broadcast: make(chan []byte, broadcastBuffer),
		log:       logger.Named("web"),
	}
}

// Publish queues a message for every client. A full queue drops it.
func (h *Hub) Publish(msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.log.Error("Encode websocket message", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("Broadcast queue full, message dropped", zap.String("type", msgType))
	}
}

// Show implements notification.Sink.
func (h *Hub) Show(n notification.Notification) {
	h.Publish(MessageNotification, n)
}

// Remove implements notification.Sink.
func (h *Hub) Remove(id string, reason notification.RemovalReason) {
	h.Publish(MessageDismissed, Dismissal{ID: id, Reason: reason})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and keeps the client registered until it
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	h.clientsMu.Unlock()
	h.log.Debug("WebSocket client connected", zap.String("remote", r.RemoteAddr))

	if h.greeting != nil {
		for _, msg := range h.greeting() {
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := c.write(payload); err != nil {
				break
			}
		}
	}

	// Clients never send anything meaningful; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsMu.Lock()
	delete(h.clients, c)
	h.clientsMu.Unlock()
	h.log.Debug("WebSocket client disconnected", zap.String("remote", r.RemoteAddr))
}

// Run delivers queued messages until ctx is cancelled, then closes every
// client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case payload := <-h.broadcast:
			h.deliver(payload)
		}
	}
}

func (h *Hub) deliver(payload []byte) {
	h.clientsMu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		if err := c.write(payload); err != nil {
			h.log.Debug("WebSocket write failed, dropping client", zap.Error(err))
			_ = c.conn.Close()
			h.clientsMu.Lock()
			delete(h.clients, c)
			h.clientsMu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}
