package edge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSEvent is the wire shape pushed to every connected websocket client.
type WSEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans out broadcast events to every connected websocket client.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan WSEvent
	mu        sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan WSEvent, 256),
	}
}

// Run drains the broadcast channel until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues event for delivery to every connected client. Drops
// the event if the broadcast channel is full rather than blocking the
// publisher.
func (h *Hub) Broadcast(event WSEvent) {
	select {
	case h.broadcast <- event:
	default:
		slog.Warn("edge: websocket broadcast channel full, dropping event")
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("edge: websocket upgrade failed", "error", err)
		return
	}

	s.hub.register(conn)
	defer func() {
		s.hub.unregister(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
