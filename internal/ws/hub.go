package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message types pushed to clients
const (
	TypeSession        = "session"
	TypeMeetingCreated = "meeting_created"
	TypeCheckIn        = "checkin"
	TypeMeetingEnded   = "meeting_ended"
)

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// DefaultWriteTimeout bounds one write to one client.
const DefaultWriteTimeout = 5 * time.Second

// Hub fans out session and submission updates to every connected client.
type Hub struct {
	mu           sync.Mutex
	conns        map[*websocket.Conn]bool
	writeTimeout time.Duration
}

func NewHub() *Hub {
	return &Hub{
		conns:        make(map[*websocket.Conn]bool),
		writeTimeout: DefaultWriteTimeout,
	}
}

// SetWriteTimeout changes how long a client may stall a write before it is
// dropped.
func (h *Hub) SetWriteTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d > 0 {
		h.writeTimeout = d
	}
}

func (h *Hub) AddConnection(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[conn] = true
	slog.Debug("WebSocket client connected", "total", len(h.conns))
}

func (h *Hub) RemoveConnection(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
		slog.Debug("WebSocket client disconnected", "total", len(h.conns))
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast writes message to every client. A connection is not safe for
// concurrent writers, so the whole fan-out holds the lock; a client that
// stalls past the write timeout is dropped.
func (h *Hub) Broadcast(message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		slog.Error("Failed to marshal websocket message", "type", message.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("Failed to write websocket message, dropping client", "error", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// CloseAll disconnects every client
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
