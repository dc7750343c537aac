package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/logging"
)

// Message types on the /ws connection.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
)

// WSMessage is the envelope of every frame sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists the channels of a subscribe or unsubscribe request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound frame; the payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func encodeWS(msgType, id, event string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		EventType: event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// ─── Hub ───────────────────────────────────────────────────────────

// Hub fans experiment and autofocus events out to subscribed clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub returns an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
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

// Register starts delivering events to client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister stops delivery and closes the client's send queue. Calling it
// again for the same client is a no-op.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(client.send)
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast queues an event on channel for every subscribed client.
// Clients whose queue is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeWS(WSTypeEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}
	for _, c := range h.subscribers(channel) {
		c.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// subscribers collects the clients listening on channel. The hub lock is
// released before any client lock is taken.
func (h *Hub) subscribers(channel string) []*WSClient {
	h.mu.RLock()
	all := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	out := all[:0]
	for _, c := range all {
		if c.isSubscribed(channel) {
			out = append(out, c)
		}
	}
	return out
}

// ─── Client ────────────────────────────────────────────────────────

// WSClient is one /ws connection.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}

	// snapshot returns the current progress; may be nil.
	snapshot func() any
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades GET /ws. A comma separated "channels" query
// parameter subscribes those channels straight away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		snapshot:      func() any { return s.inst.Orchestrator.Progress() },
	}
	if q := r.URL.Query().Get("channels"); q != "" {
		client.setChannels(strings.Split(q, ","), true)
	}
	s.hub.Register(client)

	timing := newWSTiming(s.wsCfg)
	go client.writeLoop(timing)
	go client.readLoop(timing, int64(s.wsCfg.MaxMessageSize))
}

type wsTiming struct {
	ping     time.Duration
	deadline time.Duration
	write    time.Duration
}

func newWSTiming(cfg config.WebSocketConfig) wsTiming {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return wsTiming{ping: ping, deadline: ping + pong, write: pong}
}

// readLoop handles client requests until the connection fails. Any frame,
// pong or otherwise, extends the read deadline.
func (c *WSClient) readLoop(t wsTiming, limit int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(t.deadline)) }
	c.conn.SetReadLimit(limit)
	extend() //nolint:errcheck // deadline errors surface on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // deadline errors surface on the next read
		c.dispatch(data)
	}
}

// writeLoop drains the send queue and pings on the configured interval.
// It exits when the hub closes the queue or a write fails.
func (c *WSClient) writeLoop(t wsTiming) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(t.write)) //nolint:errcheck // the write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *WSClient) dispatch(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
			c.reply(req.ID, WSTypeError, map[string]string{"message": "invalid " + req.Type + " payload"})
			return
		}
		on := req.Type == WSTypeSubscribe
		c.setChannels(sub.Channels, on)
		if !on {
			c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
			return
		}
		c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": sub.Channels})
		for _, ch := range sub.Channels {
			if ch == ChannelProgress && c.snapshot != nil {
				c.event(ChannelProgress, c.snapshot())
			}
		}
	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

func (c *WSClient) setChannels(channels []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		switch {
		case ch == "":
		case on:
			c.subscriptions[ch] = struct{}{}
		default:
			delete(c.subscriptions, ch)
		}
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) event(channel string, payload any) {
	if data, err := encodeWS(WSTypeEvent, "", channel, payload); err == nil {
		c.trySend(data)
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	if data, err := encodeWS(msgType, id, "", payload); err == nil {
		c.trySend(data)
	}
}

// trySend queues data without blocking. A full queue drops the frame; a
// queue closed by a concurrent Unregister is ignored.
func (c *WSClient) trySend(data []byte) {
	defer func() { recover() }() //nolint:errcheck // send on closed channel

	select {
	case c.send <- data:
	default:
	}
}
