// Package live pushes refresh notices to browsers over websockets.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/botpulse/internal/domain/model"
	"github.com/okian/botpulse/pkg/logger"
	"github.com/okian/botpulse/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	defaultPong    = 60 * time.Second
	maxMessageSize = 4 * 1024
	defaultBuffer  = 16
)

// Hub tracks connected clients and fans notices out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	upgrader   websocket.Upgrader
	sendBuffer int
	pongWait   time.Duration
	pingPeriod time.Duration

	logger logger.Logger
}

type client struct {
	id         string
	department string
	conn       *websocket.Conn
	send       chan []byte
	once       sync.Once
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer: defaultBuffer,
		pongWait:   defaultPong,
		pingPeriod: defaultPong * 9 / 10,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and subscribes the connection. The optional
// department query parameter limits notices to one department.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	c := &client{
		id:         uuid.NewString(),
		department: r.URL.Query().Get("department"),
		conn:       conn,
		send:       make(chan []byte, h.sendBuffer),
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.logger.Debug(r.Context(), "client connected",
		logger.String("client", c.id), logger.String("department", c.department))

	go h.writePump(c)
	go h.readPump(c)
}

// Notify sends n to every client subscribed to its department. A client whose
// buffer is full is disconnected.
func (h *Hub) Notify(ctx context.Context, n model.Notice) {
	msg, err := json.Marshal(n)
	if err != nil {
		h.logger.Error(ctx, "encode notice", logger.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for _, c := range h.clients {
		if c.department != "" && c.department != n.Department {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn(ctx, "dropping slow client", logger.String("client", c.id))
		metrics.RecordErrorByComponent("live", "slow_client")
		h.remove(c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.Unlock()

	for _, c := range all {
		h.remove(c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	metrics.UpdateLiveClients(len(h.clients))
	return true
}

// remove unregisters c and closes its send channel, which makes the write
// pump say goodbye and close the socket.
func (h *Hub) remove(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		metrics.UpdateLiveClients(len(h.clients))
		h.mu.Unlock()
		close(c.send)
	})
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only keeps the read deadline moving; clients have nothing to say.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(context.Background(), "client read", logger.String("client", c.id), logger.Error(err))
			}
			return
		}
	}
}
