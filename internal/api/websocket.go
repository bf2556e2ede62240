package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tracker-core/internal/infrastructure/config"
	"github.com/nerrad567/tracker-core/internal/infrastructure/logging"
)

// Channels a WebSocket client can subscribe to.
const (
	// ChannelMoved carries one MovedEvent per moved notification.
	ChannelMoved = "tracker.moved"

	// ChannelSettings carries the full tracking settings after every change.
	// A new subscriber gets the current settings straight away.
	ChannelSettings = "settings.changed"
)

var knownChannels = map[string]struct{}{
	ChannelMoved:    {},
	ChannelSettings: {},
}

// Message types on the WebSocket protocol.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const wsSendBufferSize = 256

// WSMessage is one frame of the protocol. Clients send subscribe,
// unsubscribe and ping. The server answers with response, pong or error
// and pushes event messages for subscribed channels.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists the channels of a subscribe or unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub fans tracker events out to the WebSocket clients subscribed to them.
//
// Lock order is hub then client.
type Hub struct {
	logger *logging.Logger

	// initial returns the event a new subscriber to a channel receives
	// immediately, if any.
	initial func(channel string) (any, bool)

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates a hub with no clients.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Broadcast pushes payload to every subscriber of channel. Nothing is
// encoded when no client listens. Clients with a full buffer miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	targets := h.subscribers(channel)
	if len(targets) == 0 {
		return
	}

	data, err := encodeEvent(channel, payload)
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	dropped := 0
	for _, c := range targets {
		if !c.trySend(data) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket event dropped for slow clients",
			"channel", channel,
			"dropped", dropped,
			"recipients", len(targets),
		)
	}
}

// Subscribers returns how many clients listen on channel.
func (h *Hub) Subscribers(channel string) int {
	return len(h.subscribers(channel))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) subscribers(channel string) []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*wsClient
	for c := range h.clients {
		if c.isSubscribed(channel) {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// remove drops c. Only the caller that finds it in the map closes its
// send channel.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

func encodeEvent(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
}

// initialEvent is the hub's initial-state source.
func (s *Server) initialEvent(channel string) (any, bool) {
	if channel == ChannelSettings {
		return s.tracker.Settings(), true
	}
	return nil, false
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origins are filtered by the CORS middleware.
		return true
	},
}

// handleWebSocket upgrades the connection and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn, s.wsCfg)
	s.hub.add(c)

	go c.writePump()
	go c.readPump()
}

// wsClient is one connected WebSocket client.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	readLimit    int64
	pingInterval time.Duration
	pongWait     time.Duration

	mu            sync.RWMutex
	subscriptions map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *wsClient {
	return &wsClient{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		readLimit:     int64(cfg.MaxMessageSize),
		pingInterval:  time.Duration(cfg.PingInterval) * time.Second,
		pongWait:      time.Duration(cfg.PongTimeout) * time.Second,
		subscriptions: make(map[string]struct{}),
	}
}

func (c *wsClient) readDeadline() time.Time {
	return time.Now().Add(c.pingInterval + c.pongWait)
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.readLimit)
	c.conn.SetReadDeadline(c.readDeadline()) //nolint:errcheck // next read reports it
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(c.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(c.readDeadline()) //nolint:errcheck // next read reports it
		c.handle(data)
	}
}

func (c *wsClient) writePump() {
	ping := time.NewTicker(c.pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.pongWait)) //nolint:errcheck // write reports it
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.pongWait)) //nolint:errcheck // write reports it
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg, true)
	case WSTypeUnsubscribe:
		c.subscribe(msg, false)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, errorPayload("unknown message type: "+msg.Type))
	}
}

// subscribe applies a subscribe (on) or unsubscribe. A request naming an
// unknown channel changes nothing.
func (c *wsClient) subscribe(msg WSMessage, on bool) {
	channels, err := decodeChannels(msg.Payload)
	if err != nil {
		c.reply(msg.ID, WSTypeError, errorPayload(err.Error()))
		return
	}
	for _, ch := range channels {
		if _, ok := knownChannels[ch]; !ok {
			c.reply(msg.ID, WSTypeError, errorPayload("unknown channel: "+ch))
			return
		}
	}

	c.mu.Lock()
	for _, ch := range channels {
		if on {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	if !on {
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
		return
	}
	c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": channels})

	if c.hub.initial == nil {
		return
	}
	for _, ch := range channels {
		payload, ok := c.hub.initial(ch)
		if !ok {
			continue
		}
		if data, err := encodeEvent(ch, payload); err == nil {
			c.trySend(data)
		}
	}
}

func decodeChannels(payload any) ([]string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.New("invalid payload")
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, errors.New("invalid subscription payload")
	}
	if len(sub.Channels) == 0 {
		return nil, errors.New("no channels given")
	}
	return sub.Channels, nil
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}

// trySend queues data without blocking. It reports false when the buffer
// is full or the client is already gone.
func (c *wsClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *wsClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}
