package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// WebSocket event types.
const (
	EventReportReady = "report.ready"
	EventPong        = "pong"
	EventSubscribed  = "subscribed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	clientBuffer = 32
)

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	Time time.Time `json:"time"`
}

// ReportEvent announces a freshly generated report.
type ReportEvent struct {
	ID          string            `json:"id"`
	Kind        models.ReportKind `json:"kind"`
	Commodity   string            `json:"commodity,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Hub fans broadcast messages out to every connected client. Clients whose
// buffer is full are dropped.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*wsClient]struct{}
	broadcast chan WSMessage
	logger    zerolog.Logger
}

type wsClient struct {
	mu     sync.Mutex
	send   chan WSMessage
	closed bool
}

// trySend queues msg without blocking. It reports false when the buffer is
// full or the client is closed.
func (c *wsClient) trySend(msg WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// NewHub creates a hub. Call Run to start delivering broadcasts.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[*wsClient]struct{}),
		broadcast: make(chan WSMessage, 64),
		logger:    logger,
	}
}

// Run delivers broadcasts until ctx is cancelled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				c.close()
			}
			h.mu.Unlock()
			return
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.trySend(msg) {
			delete(h.clients, c)
			c.close()
			h.logger.Debug().Msg("dropping slow websocket client")
		}
	}
}

// Broadcast queues msg for every client. It never blocks; messages are
// dropped while the queue is full.
func (h *Hub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn().Str("type", msg.Type).Msg("websocket broadcast queue full")
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register() *wsClient {
	c := &wsClient{send: make(chan WSMessage, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// handleWebSocket upgrades the connection and streams hub events to it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := s.hub.register()
	go s.writePump(conn, client)
	go s.readPump(conn, client)
}

// readPump handles client pings and subscription acks, and unregisters the
// client when the connection closes.
func (s *Server) readPump(conn *websocket.Conn, client *wsClient) {
	defer func() {
		s.hub.unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		var reply WSMessage
		switch msg.Type {
		case "ping":
			reply = WSMessage{Type: EventPong, Time: s.now()}
		case "subscribe":
			reply = WSMessage{Type: EventSubscribed, Data: msg.Data}
		default:
			continue
		}
		client.trySend(reply)
	}
}

// writePump writes queued messages and keepalive pings.
func (s *Server) writePump(conn *websocket.Conn, client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
