package notify

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ledgerly/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// envelope is the wire form of a published event.
type envelope struct {
	Topic string `json:"topic"`
	Event Event  `json:"event"`
}

// Client is one websocket connection belonging to one owner.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// Hub fans published events out to every connection of the event's owner.
// One hub instance serves the whole process.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. Call Run in a goroutine before serving connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes client registration until the process exits.
func (h *Hub) Run() {
	log := logger.Named("hub")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]struct{})
			}
			h.clients[client.userID][client] = struct{}{}
			h.mu.Unlock()
			log.Infow("client registered", "user_id", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.userID]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.userID)
					}
				}
			}
			h.mu.Unlock()
			log.Infow("client unregistered", "user_id", client.userID)
		}
	}
}

// Publish implements Sink. The owner is recovered from the topic; events for
// owners with no connections are dropped.
func (h *Hub) Publish(topic string, event Event) {
	userID, ok := ownerFromTopic(topic)
	if !ok {
		logger.Named("hub").Warnw("unroutable topic", "topic", topic)
		return
	}

	data, err := json.Marshal(envelope{Topic: topic, Event: event})
	if err != nil {
		logger.Named("hub").Errorw("marshal event", "topic", topic, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop the event rather than block the publisher.
			logger.Named("hub").Warnw("dropping event for slow client", "user_id", userID, "topic", topic)
		}
	}
}

// ownerFromTopic extracts the owner id from "user_<id>_<concern>".
func ownerFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, "user_")
	if !ok {
		return "", false
	}
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 {
		return "", false
	}
	return rest[:idx], true
}

// ServeWS upgrades an HTTP request to a websocket connection for the given
// owner and starts its read/write pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize), userID: userID}
	h.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Clients only listen; inbound messages are discarded.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

var _ Sink = (*Hub)(nil)
