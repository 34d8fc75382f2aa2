package mqtt

import "fmt"

// Subscribe registers a handler for a topic filter (wildcards allowed).
// The subscription is tracked and automatically restored after a
// reconnect. Handlers run on paho's dispatch goroutines with panic
// recovery; a returned error is logged but never re-queues the message.
//
// The handler parameter is declared with the raw function type rather
// than MessageHandler so consumers can satisfy a minimal local
// Subscriber interface without importing this package.
func (c *Client) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: qos %d", ErrInvalidQoS, qos)
	}

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout subscribing to %s", ErrSubscribeFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	// Track for restoration on reconnect
	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	return nil
}

// Unsubscribe removes the handler for a topic and stops tracking it.
func (c *Client) Unsubscribe(topic string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout unsubscribing from %s", ErrSubscribeFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()

	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}
