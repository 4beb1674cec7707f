package mqtt

import (
	"fmt"
	"time"
)

// Message is one inbound publication as delivered by the broker.
type Message struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Subscribe registers a handler for messages on the specified topic.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "esp32/+/data" matches every device's sensor topic
//   - # (multi-level): "esp32/#" matches all RoomLink topics
//
// Subscriptions are automatically restored if the connection is lost and
// reconnected (tracked internally).
//
// Parameters:
//   - topic: The topic pattern to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Stream subscribes to topic and returns a channel carrying every matching
// message in arrival order.
//
// The channel is buffered by mqtt.inbox_size. When the buffer is full the
// subscription handler waits for the consumer, which applies backpressure
// to the broker connection instead of dropping or reordering messages.
// The channel is closed by Close; consumers treat a closed channel as
// cancellation.
//
// Example:
//
//	msgs, err := client.Stream(client.Topics().All(), 1)
//	for msg := range msgs {
//	    handle(msg.Topic, msg.Payload)
//	}
func (c *Client) Stream(topic string, qos byte) (<-chan Message, error) {
	size := c.cfg.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	ch := make(chan Message, size)

	c.streamMu.Lock()
	if c.closed {
		c.streamMu.Unlock()
		return nil, ErrClosed
	}
	c.streams = append(c.streams, ch)
	c.streamMu.Unlock()

	if err := c.Subscribe(topic, qos, c.forwardTo(ch)); err != nil {
		c.dropStream(ch)
		return nil, err
	}
	return ch, nil
}

// forwardTo returns a handler that copies messages into ch until Close.
func (c *Client) forwardTo(ch chan Message) MessageHandler {
	return func(topic string, payload []byte) error {
		msg := Message{
			Topic:    topic,
			Payload:  append([]byte(nil), payload...),
			Received: time.Now(),
		}

		c.streamMu.RLock()
		defer c.streamMu.RUnlock()
		if c.closed {
			return ErrClosed
		}
		select {
		case ch <- msg:
			return nil
		case <-c.done:
			return ErrClosed
		}
	}
}

// dropStream closes and forgets a stream whose subscription failed.
func (c *Client) dropStream(ch chan Message) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	for i, s := range c.streams {
		if s == ch {
			c.streams = append(c.streams[:i], c.streams[i+1:]...)
			close(ch)
			return
		}
	}
}

// Unsubscribe removes a subscription and stops receiving messages for a topic.
//
// Parameters:
//   - topic: The exact topic pattern that was subscribed to
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// forget removes a topic from subscription tracking.
func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given topic.
//
// Note: This checks only the exact topic string, not pattern matching.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
