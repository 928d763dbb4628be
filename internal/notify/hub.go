package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/launchthatbrand/portal-api/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// pushFrame is the JSON frame written to subscribed sockets.
type pushFrame struct {
	Type    string               `json:"type"`
	Payload *models.Notification `json:"payload"`
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

// Hub tracks one live socket per user and pushes freshly created unread
// notifications to it. A user reconnecting replaces their previous socket.
type Hub struct {
	clients    map[uint]*client
	register   chan *client
	unregister chan *client
	push       chan []byte
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		push:       make(chan []byte, 64),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if prev, ok := h.clients[c.userID]; ok {
				close(prev.send)
			}
			h.clients[c.userID] = c
			h.mu.Unlock()
			slog.Info("Notification socket registered", "user_id", c.userID)

		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[c.userID]; ok && cur == c {
				delete(h.clients, c.userID)
				close(c.send)
			}
			h.mu.Unlock()
			slog.Info("Notification socket unregistered", "user_id", c.userID)

		case frame := <-h.push:
			h.deliver(frame)
		}
	}
}

func (h *Hub) deliver(frame []byte) {
	var f pushFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.Payload == nil {
		slog.Error("Dropping malformed push frame", "error", err)
		return
	}

	h.mu.Lock()
	c, ok := h.clients[f.Payload.UserID]
	h.mu.Unlock()
	if !ok {
		return
	}

	select {
	case c.send <- frame:
	default:
		// Slow consumer; drop the frame rather than block the hub.
		slog.Warn("Notification push dropped, send buffer full", "user_id", f.Payload.UserID)
	}
}

// Push enqueues a notification for delivery to its recipient's socket, if
// one is connected. It never blocks the caller.
func (h *Hub) Push(n *models.Notification) {
	frame, err := json.Marshal(pushFrame{Type: "notification", Payload: n})
	if err != nil {
		slog.Error("Failed to marshal notification push", "error", err)
		return
	}
	select {
	case h.push <- frame:
	default:
		slog.Warn("Notification push queue full, dropping", "user_id", n.UserID)
	}
}

// ServeWS upgrades the request and attaches the socket to the hub. The
// authenticated user id must already be present on the context.
func (h *Hub) ServeWS(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	cl := &client{hub: h, conn: conn, send: make(chan []byte, 16), userID: userID}
	h.register <- cl

	go cl.writePump()
	go cl.readPump()
}

func (c *client) writePump() {
	defer c.conn.Close()
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

// readPump only watches for the peer closing; clients do not send anything.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
