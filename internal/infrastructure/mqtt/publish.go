package mqtt

import "fmt"

// maxPayloadSize caps publishes at 1MB, in line with common broker
// limits. Mesh messages are tiny; hitting this means something upstream
// is broken.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker to
// acknowledge, up to defaultPublishTimeout.
//
// QoS follows MQTT semantics (0 fire-and-forget, 1 at-least-once, 2
// exactly-once). Retained should be true only for the status topic;
// mirrored messages are transient.
//
// Publishes attempted while the broker is away fail fast with
// ErrNotConnected. The mirror does not queue while offline; the store
// is the durability layer.
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
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
