package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// Event is one message on the live mutation feed.
type Event struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// Hub manages WebSocket connections and broadcasts knowledge-base mutation
// events to them.
type Hub struct {
	clients    map[feedClient]bool
	broadcast  chan Event
	register   chan feedClient
	unregister chan feedClient
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	logger     zerolog.Logger
}

// feedClient allows for both real connections and test doubles.
type feedClient interface {
	sendChannel() chan []byte
	close()
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) sendChannel() chan []byte { return c.send }

func (c *client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

// NewHub creates a WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[feedClient]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan feedClient),
		unregister: make(chan feedClient),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", count).Msg("feed client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.sendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", count).Msg("feed client disconnected")

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error().Err(err).Str("topic", event.Topic).
					Msg("failed to encode feed event")
				continue
			}

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.sendChannel() <- data:
				default:
					// Slow consumer, drop the connection.
					close(c.sendChannel())
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop shuts down the hub and disconnects all clients.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for c := range h.clients {
		close(c.sendChannel())
		c.close()
	}
	h.clients = make(map[feedClient]bool)
	h.mu.Unlock()
}

// Broadcast queues an event for all connected clients. Events are dropped
// when the queue is full rather than blocking the caller.
func (h *Hub) Broadcast(topic string, payload interface{}) {
	select {
	case h.broadcast <- Event{Topic: topic, Payload: payload}:
	default:
		h.logger.Warn().Str("topic", topic).Msg("feed queue full, dropping event")
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and joins it to
// the feed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		c.close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	defer func() {
		c.unregisterSelf()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			return
		}
	}
}

// readPump drains inbound frames so disconnections are noticed. The feed is
// one-way.
func (c *client) readPump() {
	defer func() {
		c.unregisterSelf()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}

func (c *client) unregisterSelf() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.ctx.Done():
	}
}
