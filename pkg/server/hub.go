package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/matzehuels/stacksync/pkg/versions"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	maxMessage   = 1 << 20
)

// Message types on the /ws channel.
const (
	TypeHello    = "hello"
	TypeVersions = "versions"
	TypeReload   = "reload"
	TypeLoaded   = "loaded"
)

// Message is a frame sent to hosts.
type Message struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data,omitempty"`
}

// inbound is a frame sent by a host. Only "loaded" is understood: it
// replaces the set of modules the host has loaded.
type inbound struct {
	Type    string   `json:"type"`
	Modules []string `json:"modules"`
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	loaded map[string]struct{}
}

// Hub tracks connected hosts. It delivers version deltas and reload
// signals to them, and answers which modules any host has loaded.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
		logger: logger,
	}
}

// sameOrigin admits non-browser clients and pages served from the same host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// Count returns the number of connected hosts.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a version delta to every host.
func (h *Hub) Broadcast(delta map[string]versions.Versions) {
	h.publish(Message{Type: TypeVersions, ID: uuid.NewString(), Data: delta})
}

// Loaded reports whether any connected host has name loaded.
func (h *Hub) Loaded(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if _, ok := c.loaded[name]; ok {
			return true
		}
	}
	return false
}

// Reload asks every host to reload all modules.
func (h *Hub) Reload(context.Context) {
	h.publish(Message{Type: TypeReload, ID: uuid.NewString()})
}

func (h *Hub) publish(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		h.logger.Error("encode message", "type", m.Type, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping message for slow host", "client", c.id, "type", m.Type)
		}
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMessage)

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		loaded: make(map[string]struct{}),
	}
	hello, _ := json.Marshal(Message{Type: TypeHello, ID: c.id})
	c.send <- hello

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("host connected", "client", c.id, "remote", r.RemoteAddr)

	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c.id)
	close(c.send)
	h.mu.Unlock()
	h.logger.Debug("host disconnected", "client", c.id)
}

func (h *Hub) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("malformed host message", "client", c.id, "err", err)
			continue
		}
		switch msg.Type {
		case TypeLoaded:
			set := make(map[string]struct{}, len(msg.Modules))
			for _, m := range msg.Modules {
				set[m] = struct{}{}
			}
			h.mu.Lock()
			c.loaded = set
			h.mu.Unlock()
		default:
			h.logger.Debug("ignoring host message", "client", c.id, "type", msg.Type)
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("write to host failed", "client", c.id, "err", err)
			return
		}
	}
}

// Close disconnects every host.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		_ = c.conn.Close()
	}
}
