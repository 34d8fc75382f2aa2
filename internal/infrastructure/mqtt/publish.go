package mqtt

import (
	"encoding/json"
	"fmt"
)

// Publish marshals payload to JSON and sends it to topic at the
// configured QoS. Retained messages are stored by the broker and handed
// to new subscribers on connect.
func (c *Client) Publish(topic string, payload any, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarshalFailed, err)
	}

	token := c.client.Publish(topic, byte(c.cfg.QoS), retained, data)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v publishing to %s", ErrPublishFailed, defaultPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// Clear removes a retained message from a topic by publishing an empty
// retained payload. Used when a sensor is deleted so late subscribers do
// not resurrect stale state.
func (c *Client) Clear(topic string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, byte(c.cfg.QoS), true, []byte{})
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout clearing %s", ErrPublishFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
