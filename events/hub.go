package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	readLimit     = 4096
	clientBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the dashboard on any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the wire format for every event pushed to clients.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Client is one connected dashboard consumer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans events out to every connected dashboard client. Delivery is
// best effort: a client whose send buffer is full has the event dropped
// rather than stalling the broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Broadcast pushes one event to every connected client.
func (h *Hub) Broadcast(event string, data interface{}) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		log.Printf("[events] Failed to encode %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			log.Printf("[events] Dropping %s event for slow client %s", event, client.id)
		}
	}
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades a dashboard request to a WebSocket and starts the
// client's pumps.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[events] WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		id:   uuid.New().String()[:8],
		conn: conn,
		send: make(chan []byte, clientBufSize),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	log.Printf("[events] Client connected: %s (%d total)", client.id, h.ClientCount())

	go client.writePump()
	go client.readPump()
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		close(client.send)
	}
	h.mu.Unlock()
}

// readPump discards inbound messages; dashboard clients only listen.
// It exists to notice the close and keep pong handling alive.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		log.Printf("[events] Client disconnected: %s", c.id)
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[events] Read error for client %s: %v", c.id, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
