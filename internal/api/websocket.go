package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/schoolhub-core/internal/auth"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/config"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/logging"
)

// Feed frame types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// WSChannelAll subscribes a client to every event type.
	WSChannelAll = "*"

	wsSendBufferSize = 256
)

const (
	defaultWSMaxMessageSize = 4096
	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second
)

// WSMessage is a frame sent to or received from a feed client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
// Channels are event types (login, logout, ...) or "*".
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// channelSet is the set of event types a client listens to.
type channelSet map[string]struct{}

func (cs channelSet) matches(eventType string) bool {
	if _, ok := cs[WSChannelAll]; ok {
		return true
	}
	_, ok := cs[eventType]
	return ok
}

// encodeFrame stamps and marshals a frame.
func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

// Hub fans session events out to connected admin feeds.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected feed consumer. Identity comes from the ticket
// it redeemed.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels channelSet

	dropped atomic.Int64

	userUUID string
	username string
	role     auth.Role
}

// Origin checks are left to the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("feed client connected", "username", c.username, "clients", n)
}

// Unregister removes a client. The send channel is closed only by whoever
// removed the client from the map.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(c.send)
	h.logger.Debug("feed client disconnected",
		"username", c.username,
		"dropped_frames", c.dropped.Load(),
		"clients", n,
	)
}

// Broadcast delivers ev to every client subscribed to its type.
func (h *Hub) Broadcast(ev Event) {
	frame, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: ev.Type, Payload: ev})
	if err != nil {
		h.logger.Error("encoding feed event", "type", ev.Type, "error", err)
		return
	}

	// Snapshot so no client lock is taken under the hub lock.
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.subscribedTo(ev.Type) {
			c.trySend(frame)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades to the event feed. The caller authenticates with
// a ticket from POST /auth/ws-ticket since browsers cannot set headers on
// the upgrade request.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.redeem(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.requestLogger(r).Error("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(channelSet),
		userUUID: entry.userUUID,
		username: entry.username,
		role:     entry.role,
	}
	s.hub.Register(c)

	t := newWSTimings(s.wsCfg)
	go c.writePump(t)
	go c.readPump(t)
}

type wsTimings struct {
	maxSize  int64
	ping     time.Duration
	pongWait time.Duration
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	t := wsTimings{
		maxSize:  cfg.MaxMessageSize,
		ping:     time.Duration(cfg.PingInterval) * time.Second,
		pongWait: time.Duration(cfg.PongTimeout) * time.Second,
	}
	if t.maxSize <= 0 {
		t.maxSize = defaultWSMaxMessageSize
	}
	if t.ping <= 0 {
		t.ping = defaultWSPingInterval
	}
	if t.pongWait <= 0 {
		t.pongWait = defaultWSPongTimeout
	}
	return t
}

// readDeadline is how long a client may stay silent.
func (t wsTimings) readDeadline() time.Time {
	return time.Now().Add(t.ping + t.pongWait)
}

func (c *WSClient) readPump(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(t.maxSize)
	c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // reset on every frame
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed read error", "username", c.username, "error", err)
			}
			return
		}
		// Any client frame counts as liveness.
		c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // write errors surface on next read
		c.handleFrame(data)
	}
}

func (c *WSClient) writePump(t wsTimings) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // connection is going away
				return
			}
			kind, data = websocket.TextMessage, frame
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(t.pongWait)) //nolint:errcheck // write below reports failure
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

func (c *WSClient) handleFrame(data []byte) {
	var msg struct {
		Type    string             `json:"type"`
		ID      string             `json:"id"`
		Payload WSSubscribePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(WSMessage{Type: WSTypeError, Payload: errorPayload("invalid JSON message")})
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		if len(msg.Payload.Channels) == 0 {
			c.reply(WSMessage{Type: WSTypeError, ID: msg.ID, Payload: errorPayload("channels must not be empty")})
			return
		}
		add := msg.Type == WSTypeSubscribe
		c.setChannels(msg.Payload.Channels, add)

		key := "unsubscribed"
		if add {
			key = "subscribed"
		}
		c.reply(WSMessage{Type: WSTypeResponse, ID: msg.ID, Payload: map[string][]string{key: msg.Payload.Channels}})
	case WSTypePing:
		c.reply(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.reply(WSMessage{Type: WSTypeError, ID: msg.ID, Payload: errorPayload("unknown message type: " + msg.Type)})
	}
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}

func (c *WSClient) setChannels(channels []string, add bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
}

func (c *WSClient) subscribedTo(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels.matches(eventType)
}

func (c *WSClient) reply(msg WSMessage) {
	frame, err := encodeFrame(msg)
	if err != nil {
		return
	}
	c.trySend(frame)
}

// trySend queues a frame without blocking. Frames for a slow or already
// closed client are counted and dropped.
func (c *WSClient) trySend(frame []byte) {
	defer func() {
		if recover() != nil {
			c.dropped.Add(1)
		}
	}()

	select {
	case c.send <- frame:
	default:
		c.dropped.Add(1)
	}
}
