package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/internal/event"
	"github.com/SandroAugusto/school-of-solana/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// newUpgrader builds the upgrader for the allowed origins.
// No configured origins allows all of them, matching the HTTP CORS layer.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[domain.Identity]bool // empty: every market
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to narrow the feed to some markets.
type subscribeMsg struct {
	Action  string            `json:"action"` // "subscribe" or "unsubscribe"
	Markets []domain.Identity `json:"markets"`
}

// Hub manages a set of connected WebSocket clients and broadcasts every
// committed lifecycle event to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *slog.Logger
	metrics    *infra.Metrics
	lastSeq    func() uint64
	upgrader   websocket.Upgrader
}

// broadcastMsg carries an encoded event along with its market so the hub
// can route it only to clients subscribed to that market.
type broadcastMsg struct {
	market domain.Identity
	data   []byte
}

// NewHub creates a new WebSocket hub. lastSeq reports the journal position
// sent to clients on connect; it may be nil. Browser clients must come from
// one of allowedOrigins unless the list is empty.
func NewHub(logger *slog.Logger, metrics *infra.Metrics, lastSeq func() uint64, allowedOrigins []string) *Hub {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		metrics:    metrics,
		lastSeq:    lastSeq,
		upgrader:   newUpgrader(allowedOrigins),
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine.
// It handles client registration, unregistration, and message broadcasting.
// The loop exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
				h.metrics.DecrementConnections()
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.metrics.IncrementConnections()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.metrics.DecrementConnections()
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.market) {
					select {
					case c.send <- msg.data:
					default:
						// Client's send buffer is full; drop the message.
						h.logger.Warn("ws: dropping message for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues ev for every subscribed client. It never blocks the caller;
// when the hub is saturated the event is dropped and clients can catch up
// from the journal endpoint.
func (h *Hub) Publish(ev event.Event) {
	data, err := json.Marshal(envelope{Type: "event", Payload: ev})
	if err != nil {
		h.logger.Error("ws: failed to encode event", slog.Uint64("seq", ev.Seq), slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- broadcastMsg{market: ev.Market.Key, data: data}:
	default:
		h.metrics.RecordError()
		h.logger.Warn("ws: broadcast buffer full, event dropped", slog.Uint64("seq", ev.Seq))
	}
}

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[domain.Identity]bool),
	}

	h.register <- c
	c.sendInitialStatus()

	// Start read and write pumps in separate goroutines.
	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads subscription requests from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, m := range msg.Markets {
			c.subs[m] = true
		}
	case "unsubscribe":
		for _, m := range msg.Markets {
			delete(c.subs, m)
		}
	}
}

// sendInitialStatus tells the client where the journal stands so it can
// backfill from GET /api/events?after=N.
func (c *client) sendInitialStatus() {
	var last uint64
	if c.hub.lastSeq != nil {
		last = c.hub.lastSeq()
	}

	msg, err := json.Marshal(envelope{
		Type:    "hello",
		Payload: map[string]any{"last_seq": last},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// isSubscribed checks whether the client follows the given market.
func (c *client) isSubscribed(market domain.Identity) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.subs) == 0 || c.subs[market]
}

// writePump pumps messages from the hub to the WebSocket connection as
// JSON text frames, with periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
