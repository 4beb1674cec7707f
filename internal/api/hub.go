package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/roomlink-core/internal/alert"
	"github.com/nerrad567/roomlink-core/internal/device"
	"github.com/nerrad567/roomlink-core/internal/engine"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/config"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/logging"
)

// clientBuffer is the number of frames queued per client before events
// are dropped for it.
const clientBuffer = 256

// Keepalive defaults for a zero WebSocketConfig.
const (
	defaultPingInterval   = 30
	defaultPongTimeout    = 10
	defaultMaxMessageSize = 8192
)

// liveChannels are the channels a client may subscribe to.
var liveChannels = map[string]struct{}{
	engine.ChannelDeviceUpdated:    {},
	engine.ChannelAlertTriggered:   {},
	engine.ChannelConnectionStatus: {},
}

// eventFrame is one live event as written to subscribers. Device is set
// for events about a single room controller.
type eventFrame struct {
	Type    string    `json:"type"`
	Channel string    `json:"channel"`
	Device  string    `json:"device,omitempty"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// deviceOf returns the room controller an event payload concerns, or ""
// for events that apply to the whole system.
func deviceOf(payload any) string {
	switch p := payload.(type) {
	case device.Device:
		return p.ID
	case *device.Device:
		return p.ID
	case alert.Event:
		return p.DeviceID
	case *alert.Event:
		return p.DeviceID
	}
	return ""
}

// Hub fans engine events out to subscribed WebSocket clients.
//
// A client that cannot keep up loses events instead of stalling the
// engine. Lock order is hub, then client.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	stopped bool
}

// NewHub creates a hub. It accepts clients until Run returns.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.stopped = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Broadcast implements engine.Hub.
func (h *Hub) Broadcast(channel string, payload any) {
	frame := h.frame(channel, payload)
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("encoding live event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(channel, frame.Device) {
			c.deliver(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) frame(channel string, payload any) eventFrame {
	return eventFrame{
		Type:    msgEvent,
		Channel: channel,
		Device:  deviceOf(payload),
		At:      h.now().UTC(),
		Payload: payload,
	}
}

// join attaches c. It reports false once the hub has stopped.
func (h *Hub) join(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", len(h.clients))
	return true
}

// leave detaches c and closes its queue. Safe to call more than once.
func (h *Hub) leave(c *wsClient) {
	h.mu.Lock()
	_, attached := h.clients[c]
	delete(h.clients, c)
	remaining := len(h.clients)
	h.mu.Unlock()

	c.close()
	if attached {
		h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", remaining)
	}
}

// wsClient is one connected WebSocket caller.
type wsClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string // token subject of the authenticated caller
	send    chan []byte
	dropped atomic.Uint64
	// current returns a channel's present state for new subscribers.
	current func(channel string) []any

	mu       sync.Mutex
	channels map[string]struct{}
	devices  map[string]struct{} // empty means every device
	closed   bool
}

func newClient(hub *Hub, conn *websocket.Conn, subject string) *wsClient {
	return &wsClient{
		hub:      hub,
		conn:     conn,
		subject:  subject,
		send:     make(chan []byte, clientBuffer),
		channels: make(map[string]struct{}),
		devices:  make(map[string]struct{}),
	}
}

// wants reports whether an event on channel about deviceID should reach
// the client. System-wide events ignore the device filter.
func (c *wsClient) wants(channel, deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if deviceID == "" || len(c.devices) == 0 {
		return true
	}
	_, ok := c.devices[deviceID]
	return ok
}

// deliver queues data without blocking. It reports whether the frame was
// queued.
func (c *wsClient) deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
	}
	if c.dropped.Add(1) == 1 {
		c.hub.logger.Warn("websocket client falling behind, dropping events", "subject", c.subject)
	}
	return false
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
