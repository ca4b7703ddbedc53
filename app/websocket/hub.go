package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	TypeWelcome       MessageType = "welcome"
	TypeStoreChanged  MessageType = "store_changed"
	TypeSyncCompleted MessageType = "sync_completed"
	TypeHeartbeat     MessageType = "heartbeat"
)

const (
	heartbeatInterval = 30 * time.Second
	pongWait          = 60 * time.Second
	pingInterval      = 54 * time.Second
	writeWait         = 10 * time.Second
	sendBuffer        = 64
)

// ErrHubStopped is returned when broadcasting after the hub loop exited
var ErrHubStopped = errors.New("websocket hub stopped")

// Message represents a WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	ClientID  string          `json:"client_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Client represents a connected dashboard
type Client struct {
	ID          string
	Connection  *websocket.Conn
	Send        chan []byte
	ConnectedAt time.Time
	RemoteAddr  string
	hub         *Hub
}

// Hub pushes store events to every connected client. Clients only listen.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.Named("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// dashboards connect from other devices on the LAN
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run is the hub loop. It returns when ctx is cancelled, closing every client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("client", client.ID), zap.String("addr", client.RemoteAddr))
			h.sendTo(client, TypeWelcome, map[string]string{"client_id": client.ID})

		case client := <-h.unregister:
			h.drop(client.ID)

		case message := <-h.broadcast:
			h.fanOut(message)

		case <-ticker.C:
			if payload, err := encode(TypeHeartbeat, nil); err == nil {
				h.fanOut(payload)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// fanOut runs on the hub loop, the only place client channels are closed
func (h *Hub) fanOut(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		select {
		case client.Send <- message:
		default:
			// slow client
			delete(h.clients, id)
			close(client.Send)
			h.logger.Warn("dropping slow client", zap.String("client", id))
		}
	}
}

func (h *Hub) drop(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(client.Send)
		h.logger.Info("client disconnected", zap.String("client", id))
	}
}

func encode(msgType MessageType, data any) ([]byte, error) {
	msg := Message{Type: msgType, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

// Broadcast queues a message for every connected client
func (h *Hub) Broadcast(msgType MessageType, data any) error {
	payload, err := encode(msgType, data)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- payload:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) sendTo(client *Client, msgType MessageType, data any) {
	payload, err := encode(msgType, data)
	if err != nil {
		return
	}
	select {
	case client.Send <- payload:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Connection:  conn,
		Send:        make(chan []byte, sendBuffer),
		ConnectedAt: time.Now(),
		RemoteAddr:  r.RemoteAddr,
		hub:         h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.Connection.Close()
	}()

	c.Connection.SetReadLimit(4096)
	c.Connection.SetReadDeadline(time.Now().Add(pongWait))
	c.Connection.SetPongHandler(func(string) error {
		return c.Connection.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err == nil && msg.Type != TypeHeartbeat {
			c.hub.logger.Debug("ignoring client message", zap.String("client", c.ID), zap.String("type", string(msg.Type)))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
