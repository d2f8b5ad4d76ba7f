package mqtt

import (
	"fmt"
)

// maxPayloadSize caps outbound messages at 1MB, aligned with common
// broker limits. Printwatch payloads are small JSON documents; anything
// larger indicates a caller bug.
const maxPayloadSize = 1 << 20

// Publish sends one message to a topic and waits for the broker's
// acknowledgment, bounded by the publish timeout.
//
// Retained publishes replace the broker's stored message for the topic,
// so new subscribers immediately see the latest state. Use retained for
// status snapshots and non-retained for one-shot events such as job
// completions.
//
// Returns ErrInvalidTopic, ErrInvalidQoS, or ErrNotConnected for
// rejected inputs, and a wrapped ErrPublishFailed for broker failures.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message at the configured
// default QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
