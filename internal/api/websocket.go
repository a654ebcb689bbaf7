package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dayflow/dayflow/internal/logging"
	"github.com/dayflow/dayflow/internal/notifications"
)

// WebSocketMessage is the envelope for all pushed messages.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketHub fans messages out to connected clients.
type WebSocketHub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan WebSocketMessage
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	log        *logging.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan WebSocketMessage
}

// NewWebSocketHub creates a hub; call Run to start it.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan WebSocketMessage, 64),
		done:       make(chan struct{}),
		log:        logging.WithComponent("ws"),
	}
}

// Run processes hub events until Close.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow consumer; drop the message rather than
					// stalling every other client.
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				client.conn.Close()
			}
			h.clients = make(map[*wsClient]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues a message for all clients.
func (h *WebSocketHub) Broadcast(msg WebSocketMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close shuts the hub down.
func (h *WebSocketHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local personal service
	},
}

// handleWebSocket upgrades the connection and attaches it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan WebSocketMessage, 16),
	}
	s.wsHub.register <- client

	go client.writePump()
	go client.readPump(s.wsHub)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pings work; inbound data is ignored.
func (c *wsClient) readPump(hub *WebSocketHub) {
	defer func() {
		select {
		case hub.unregister <- c:
		case <-hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// hubSubscriber bridges the notification service to the websocket hub.
type hubSubscriber struct {
	hub *WebSocketHub
}

func newHubSubscriber(hub *WebSocketHub) *hubSubscriber {
	return &hubSubscriber{hub: hub}
}

func (s *hubSubscriber) ID() string { return "websocket-hub" }

func (s *hubSubscriber) Send(n notifications.Notification) error {
	s.hub.Broadcast(WebSocketMessage{
		Type:      "notification",
		Data:      n,
		Timestamp: time.Now(),
	})
	return nil
}
