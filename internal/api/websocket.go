package api

import (
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/roomlink-core/internal/engine"
)

// Frame types on the live-view socket.
const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"
	msgPong        = "pong"
	msgAck         = "ack"
	msgEvent       = "event"
	msgError       = "error"
)

// request is a frame sent by the client.
//
// Subscribe adds Channels. A non-nil Devices replaces the device filter,
// and an empty list clears it. Unsubscribe removes Channels.
type request struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Devices  []string `json:"devices,omitempty"`
}

// reply answers a request. Acks carry the subscription as it stands
// after the request.
type reply struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Devices  []string `json:"devices,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Origins are enforced by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades GET /ws.
//
// The caller authenticates with a bearer token header or a single-use
// ticket from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	subject, ok := s.authenticateWebSocket(r)
	if !ok {
		writeUnauthorized(w, "valid bearer token or ticket is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(s.hub, conn, subject)
	c.current = s.currentState
	if !s.hub.join(c) {
		//nolint:errcheck // shutting down
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

// authenticateWebSocket resolves the caller of an upgrade request.
func (s *Server) authenticateWebSocket(r *http.Request) (string, bool) {
	if raw, ok := bearerToken(r); ok {
		subject, err := s.verifyToken(raw)
		if err != nil {
			s.logger.Debug("rejected websocket bearer token", "error", err)
			return "", false
		}
		return subject, true
	}
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		return s.tickets.redeem(ticket)
	}
	return "", false
}

// currentState returns the payloads a new subscriber to channel is sent
// straight away, so a fresh view does not wait for the next change.
func (s *Server) currentState(channel string) []any {
	switch channel {
	case engine.ChannelDeviceUpdated:
		devices := s.registry.Snapshot()
		out := make([]any, len(devices))
		for i, d := range devices {
			out[i] = d
		}
		return out
	case engine.ChannelConnectionStatus:
		if s.status != nil {
			return []any{s.status.Status()}
		}
	}
	return nil
}

func (c *wsClient) readLoop() {
	defer c.hub.leave(c)

	cfg := c.hub.cfg
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // a failed deadline surfaces as a read error
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings stay alive by sending frames.
		//nolint:errcheck // a failed deadline surfaces as a read error
		extend()
		c.handle(data)
	}
}

func (c *wsClient) writeLoop() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // the connection is closing anyway
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle applies one client frame.
func (c *wsClient) handle(data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		c.fail("", "invalid JSON frame")
		return
	}

	switch req.Type {
	case msgSubscribe:
		c.subscribe(req)
	case msgUnsubscribe:
		c.unsubscribe(req)
	case msgPing:
		c.queue(reply{Type: msgPong, ID: req.ID})
	default:
		c.fail(req.ID, "unknown frame type: "+req.Type)
	}
}

func (c *wsClient) subscribe(req request) {
	channels, ok := c.validChannels(req)
	if !ok {
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	if req.Devices != nil {
		c.devices = make(map[string]struct{}, len(req.Devices))
		for _, id := range req.Devices {
			c.devices[id] = struct{}{}
		}
	}
	ack := c.ackLocked(req.ID)
	c.mu.Unlock()

	c.queue(ack)
	c.sendCurrent(channels)
}

func (c *wsClient) unsubscribe(req request) {
	channels, ok := c.validChannels(req)
	if !ok {
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
	ack := c.ackLocked(req.ID)
	c.mu.Unlock()

	c.queue(ack)
}

// validChannels returns the request's channels deduplicated, or reports
// an error to the client when the list is empty or names an unknown
// channel.
func (c *wsClient) validChannels(req request) ([]string, bool) {
	if len(req.Channels) == 0 {
		c.fail(req.ID, "at least one channel is required")
		return nil, false
	}
	for _, ch := range req.Channels {
		if _, ok := liveChannels[ch]; !ok {
			c.fail(req.ID, "unknown channel: "+ch)
			return nil, false
		}
	}
	return slices.Compact(slices.Sorted(slices.Values(req.Channels))), true
}

func (c *wsClient) ackLocked(id string) reply {
	return reply{
		Type:     msgAck,
		ID:       id,
		Channels: slices.Sorted(maps.Keys(c.channels)),
		Devices:  slices.Sorted(maps.Keys(c.devices)),
	}
}

// sendCurrent queues the current state of each channel, honouring the
// device filter.
func (c *wsClient) sendCurrent(channels []string) {
	if c.current == nil {
		return
	}
	for _, ch := range channels {
		for _, payload := range c.current(ch) {
			frame := c.hub.frame(ch, payload)
			if c.wants(ch, frame.Device) {
				c.queue(frame)
			}
		}
	}
}

func (c *wsClient) fail(id, message string) {
	c.queue(reply{Type: msgError, ID: id, Error: message})
}

// queue encodes v and hands it to the write loop.
func (c *wsClient) queue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("encoding websocket frame", "error", err)
		return
	}
	c.deliver(data)
}
