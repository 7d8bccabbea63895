package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"voltrack/internal/events"
)

const (
	readTimeout  = 90 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// Frame is the wire format for messages pushed to UI clients.
type Frame struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
}

// Hub pushes resource events to connected websocket clients. Clients only
// receive; anything they send is discarded.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	nextID  uint64
	clients map[uint64]*client

	unsubscribe func()
}

type client struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates a hub with no clients.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[uint64]*client),
	}
}

// Attach subscribes the hub to resource events on bus.
func (h *Hub) Attach(bus *events.Bus) {
	h.unsubscribe = bus.Subscribe(h.Broadcast,
		events.ResourceAdded, events.ResourceChanged, events.ResourceDeleted)
}

// Broadcast queues e for every client. Slow clients drop frames rather than
// block the publisher.
func (h *Hub) Broadcast(e events.Event) {
	if !e.Type.IsResource() {
		return
	}
	data, err := json.Marshal(Frame{Type: string(e.Type), Event: e})
	if err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("ws: failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warn().Uint64("client", c.id).Msg("ws: client queue full, dropping frame")
		}
	}
}

// HandleConnection upgrades the request and serves the client until it
// disconnects.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("ws: upgrade failed")
		return
	}

	h.mu.Lock()
	h.nextID++
	c := &client{
		id:   h.nextID,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	log.Debug().Uint64("client", c.id).Str("remote", r.RemoteAddr).Msg("ws: client connected")

	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.stop()

	log.Debug().Uint64("client", c.id).Msg("ws: client disconnected")
}

func (h *Hub) readLoop(c *client) {
	defer c.conn.Close()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Uint64("client", c.id).Msg("ws: read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

// writeLoop is the only writer of data frames on the connection.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(
				websocket.PingMessage, nil,
				time.Now().Add(writeTimeout),
			); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// ActiveConnections returns the number of connected clients.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll unsubscribes from the bus and disconnects every client.
func (h *Hub) CloseAll() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.stop()
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(5*time.Second),
		)
		c.conn.Close()
		delete(h.clients, id)
	}
}
