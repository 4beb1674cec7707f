package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/roomlink-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with RoomLink-specific functionality.
//
// It provides connection management, message publishing, subscription handling,
// and automatic reconnection with exponential backoff. Inbound traffic and
// connection status are delivered over channels (see Stream and
// ConnectionEvents) so consumers run a single receive loop instead of
// nesting callbacks.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	topics  Topics

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// events carries connection state changes to the consumer.
	events       chan ConnectionEvent
	eventsClosed bool
	eventsMu     sync.Mutex
	done         chan struct{}

	// streams are the inbound channels handed out by Stream. Handlers hold
	// streamMu for reading while sending; Close takes it for writing before
	// closing the channels.
	streams  []chan Message
	closed   bool
	streamMu sync.RWMutex

	// onPublishError is invoked when an asynchronous publish fails.
	onPublishError func(topic string, err error)
	callbackMu     sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// ConnectionEvent reports a change in broker connectivity.
type ConnectionEvent struct {
	Connected bool
	// Err describes why the connection was lost. Nil when Connected.
	Err error
	At  time.Time
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in order by the paho library, one at a time.
// They should not block for extended periods.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament (LWT) on <namespace>/app/status
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts initial connection with timeout
//  5. Publishes "online" to <namespace>/app/status on every (re)connect
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If initial connection fails within timeout
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	c := newClient(cfg, opts)
	configureLWT(opts, c.topics)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet, so IsConnected must not wait for it.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// newClient builds a Client around options without connecting.
func newClient(cfg config.MQTTConfig, opts *pahomqtt.ClientOptions) *Client {
	return &Client{
		cfg:           cfg,
		options:       opts,
		topics:        Topics{Namespace: cfg.Namespace},
		subscriptions: make(map[string]subscription),
		events:        make(chan ConnectionEvent, connectionEventBuffer),
		done:          make(chan struct{}),
	}
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()
	c.publishStatus(StatusOnline)
	c.emit(ConnectionEvent{Connected: true, At: time.Now()})
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
	c.emit(ConnectionEvent{Connected: false, Err: err, At: time.Now()})
}

// emit delivers a connection event without blocking the paho callback.
// When the buffer is full the oldest pending event is discarded so the
// consumer always ends up with the latest state.
func (c *Client) emit(ev ConnectionEvent) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()

	if c.eventsClosed {
		return
	}
	for {
		select {
		case c.events <- ev:
			return
		default:
			select {
			case <-c.events:
			default:
			}
		}
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Errors surface through the next connection-lost event.
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishStatus publishes the app status as a retained message.
func (c *Client) publishStatus(status string) pahomqtt.Token {
	return c.client.Publish(c.topics.AppStatus(), statusQoS, true, status)
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes "offline" to the app status topic
//  2. Disconnects from broker, waiting for pending operations
//  3. Closes every channel returned by Stream and ConnectionEvents
//
// Returns:
//   - error: If disconnect fails (connection already closed is not an error)
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(StatusOffline).WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.closeChannels()
	return nil
}

// closeChannels releases blocked handlers and closes consumer channels once.
func (c *Client) closeChannels() {
	c.eventsMu.Lock()
	if c.eventsClosed {
		c.eventsMu.Unlock()
		return
	}
	c.eventsClosed = true
	close(c.done)
	close(c.events)
	c.eventsMu.Unlock()

	c.streamMu.Lock()
	c.closed = true
	for _, ch := range c.streams {
		close(ch)
	}
	c.streams = nil
	c.streamMu.Unlock()
}

// HealthCheck verifies the MQTT connection is alive and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// Topics returns the topic builder bound to the configured namespace.
func (c *Client) Topics() Topics {
	return c.topics
}

// ConnectionEvents returns the channel carrying connectivity changes.
// The channel is closed by Close.
func (c *Client) ConnectionEvents() <-chan ConnectionEvent {
	return c.events
}

// SetOnPublishError sets a callback invoked when an asynchronous publish
// fails or times out. The callback receives the topic only; callers that
// need correlation must carry it in the payload.
func (c *Client) SetOnPublishError(callback func(topic string, err error)) {
	c.callbackMu.Lock()
	c.onPublishError = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
