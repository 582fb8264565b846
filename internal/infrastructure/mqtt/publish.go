package mqtt

import "fmt"

// maxPayloadSize caps a single message at 1MB, in line with common
// broker defaults.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic at the given QoS. State topics should
// be published retained so late subscribers see the current value;
// commands and acks should not.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, opTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishRetained publishes retained at the configured default QoS. Used
// for the state, status, and dialect topics.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
