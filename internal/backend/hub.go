package backend

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection is one client channel on the backend.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	// Send carries outbound text frames to the write pump.
	Send chan []byte

	questions chan string
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
}

// WriteMessage writes a frame with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Done is closed when the connection is shutting down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close stops the connection's goroutines and closes the socket.
func (c *Connection) Close() error {
	c.cancel()
	return c.Conn.Close()
}

// Hub tracks live connections.
type Hub struct {
	connections map[string]*Connection
	mu          sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{connections: make(map[string]*Connection)}
}

// NewConnection wraps ws in a Connection bound to parent.
func (h *Hub) NewConnection(parent context.Context, ws *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(parent)
	return &Connection{
		ID:        uuid.New().String(),
		Conn:      ws,
		Send:      make(chan []byte, 256),
		questions: make(chan string, 16),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register adds a connection.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID] = conn
}

// Unregister removes a connection. It reports whether it was registered.
func (h *Hub) Unregister(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return false
	}
	delete(h.connections, conn.ID)
	return true
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Close()
	}
}
