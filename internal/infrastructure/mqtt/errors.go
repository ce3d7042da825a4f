package mqtt

import "errors"

// Sentinel errors for mirror operations. Match with errors.Is.
var (
	// ErrDisabled means the mirror is switched off in config. Callers
	// treat it as "run without MQTT", not as a failure.
	ErrDisabled = errors.New("mqtt: disabled in configuration")

	// ErrConnectionFailed wraps a failed initial broker handshake.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned for publishes attempted while the
	// broker session is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed wraps broker-side publish failures and timeouts.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS rejects QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
