package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 20 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Logger defines minimal logging interface required by the hub.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub keeps every open socket per user and pushes JSON events to them.
type Hub struct {
	logger   Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[int64]map[*client]struct{}
}

func NewHub(logger Logger, allowedOrigins []string) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		conns: make(map[int64]map[*client]struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Serve upgrades the request and registers the socket for userID. The
// caller is responsible for authenticating the user first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("order ws upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn}

	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*client]struct{})
	}
	h.conns[userID][c] = struct{}{}
	h.mu.Unlock()

	h.logger.Infof("order ws user %d connected", userID)

	go h.pingLoop(userID, c)
	go h.readLoop(userID, c)
}

// Connections returns the number of open sockets for userID.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// PublishToUser sends payload to every socket of userID.
func (h *Hub) PublishToUser(userID int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorf("order ws marshal failed: %v", err)
		return
	}
	h.mu.RLock()
	clients := make([]*client, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.safeWrite(userID, c, func(conn *websocket.Conn) error {
			return conn.WriteMessage(websocket.TextMessage, data)
		})
	}
}

func (h *Hub) pingLoop(userID int64, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if !h.alive(userID, c) {
			return
		}
		h.safeWrite(userID, c, func(conn *websocket.Conn) error {
			return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		})
	}
}

func (h *Hub) readLoop(userID int64, c *client) {
	defer h.closeConn(userID, c)

	conn := c.conn
	conn.SetReadLimit(4 << 10)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt == websocket.TextMessage && strings.EqualFold(strings.TrimSpace(string(message)), "ping") {
			h.safeWrite(userID, c, func(conn *websocket.Conn) error {
				return conn.WriteMessage(websocket.TextMessage, []byte("pong"))
			})
		}
	}
}

func (h *Hub) alive(userID int64, c *client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[userID][c]
	return ok
}

func (h *Hub) closeConn(userID int64, c *client) {
	_ = c.conn.Close()
	h.mu.Lock()
	if set, ok := h.conns[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) safeWrite(userID int64, c *client, fn func(*websocket.Conn) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := fn(c.conn); err != nil {
		h.logger.Errorf("order ws user %d write failed: %v", userID, err)
		go h.closeConn(userID, c)
	}
}
