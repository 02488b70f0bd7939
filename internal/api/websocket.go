package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/envio-core/internal/infrastructure/config"
	"github.com/nerrad567/envio-core/internal/infrastructure/logging"
)

// Message types exchanged over /api/v1/ws.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// ChannelAllItems is shorthand for every item channel.
const ChannelAllItems = "item.*"

// wsSendBufferSize bounds the frames queued for one client. A client that
// falls this far behind misses events rather than stalling the broadcaster.
const wsSendBufferSize = 256

var itemChannels = []string{ChannelItemCreated, ChannelItemReplaced, ChannelItemUpdated, ChannelItemDeleted}

// WSMessage is the envelope of every frame in both directions. Seq is set
// on item events only.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Seq       uint64 `json:"seq,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload carries the channel list of subscribe and unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// encode stamps msg with the current time and marshals it.
func (msg WSMessage) encode() ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

// Hub tracks connected clients and fans item events out to them.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one upgraded connection and the channels it listens to.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
}

// CORS middleware has already vetted the origin by the time we upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// NewHub returns an empty hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx ends and then disconnects every client.
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

// Register starts delivering events to c.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister stops delivery to c. It is safe to call more than once: the
// send channel is closed only by the call that removed c.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, found := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !found {
		return
	}
	close(c.send)
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event frame for every client subscribed to channel.
func (h *Hub) Broadcast(channel string, seq uint64, payload any) {
	data, err := WSMessage{Type: WSTypeEvent, EventType: channel, Seq: seq, Payload: payload}.encode()
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	recipients := 0
	for _, c := range h.subscribersOf(channel) {
		c.trySend(data)
		recipients++
	}
	if recipients > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", recipients)
	}
}

// subscribersOf copies out the matching clients so no client lock is taken
// while the hub lock is held.
func (h *Hub) subscribersOf(channel string) []*WSClient {
	h.mu.RLock()
	all := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	return slices.DeleteFunc(all, func(c *WSClient) bool { return !c.isSubscribed(channel) })
}

// handleWebSocket upgrades the request. The client then sends subscribe
// frames naming item channels.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.Register(c)

	ka := newKeepalive(s.wsCfg)
	go c.writeLoop(ka)
	go c.readLoop(ka, int64(s.wsCfg.MaxMessageSize))
}

// keepalive holds the ping cadence derived from the WebSocket config.
type keepalive struct {
	ping time.Duration
	pong time.Duration
}

func newKeepalive(cfg config.WebSocketConfig) keepalive {
	return keepalive{
		ping: time.Duration(cfg.PingInterval) * time.Second,
		pong: time.Duration(cfg.PongTimeout) * time.Second,
	}
}

// readDeadline is how long the peer may stay silent.
func (k keepalive) readDeadline() time.Time {
	return time.Now().Add(k.ping + k.pong)
}

// readLoop handles inbound frames until the connection fails. Any frame
// from the peer, not just a pong, extends the read deadline.
func (c *WSClient) readLoop(ka keepalive, maxSize int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxSize)
	//nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetReadDeadline(ka.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(ka.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces as a read error
		c.conn.SetReadDeadline(ka.readDeadline())
		c.dispatch(data)
	}
}

// writeLoop is the only writer on the connection. It exits when the send
// channel is closed or a write fails.
func (c *WSClient) writeLoop(ka keepalive) {
	ticker := time.NewTicker(ka.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // a failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(ka.pong))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, open := <-c.send:
			if !open {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is going away
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame by type.
func (c *WSClient) dispatch(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.changeSubscriptions(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.replyError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// changeSubscriptions applies a subscribe or unsubscribe frame. One unknown
// channel rejects the whole frame.
func (c *WSClient) changeSubscriptions(msg WSMessage) {
	var sub WSSubscribePayload
	raw, err := json.Marshal(msg.Payload)
	if err == nil {
		err = json.Unmarshal(raw, &sub)
	}
	if err != nil || len(sub.Channels) == 0 {
		c.replyError(msg.ID, "payload must list at least one channel")
		return
	}

	channels, err := expandChannels(sub.Channels)
	if err != nil {
		c.replyError(msg.ID, err.Error())
		return
	}

	adding := msg.Type == WSTypeSubscribe
	c.mu.Lock()
	for _, ch := range channels {
		if adding {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	result := "unsubscribed"
	if adding {
		result = "subscribed"
		c.hub.logger.Debug("websocket client subscribed", "channels", channels)
	}
	c.reply(msg.ID, WSTypeResponse, map[string]any{result: channels})
}

// expandChannels resolves the wildcard and drops duplicates, keeping the
// order in which channels were first named.
func expandChannels(requested []string) ([]string, error) {
	var out []string
	for _, ch := range requested {
		names := []string{ch}
		switch {
		case ch == ChannelAllItems:
			names = itemChannels
		case !slices.Contains(itemChannels, ch):
			return nil, fmt.Errorf("unknown channel: %s", ch)
		}
		for _, name := range names {
			if !slices.Contains(out, name) {
				out = append(out, name)
			}
		}
	}
	return out, nil
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// trySend queues data without blocking. A full buffer drops the frame; a
// channel already closed by Unregister or Run is ignored.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed during shutdown
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := WSMessage{Type: msgType, ID: id, Payload: payload}.encode()
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) replyError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
