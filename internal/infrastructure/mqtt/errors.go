package mqtt

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	// ErrConnectionFailed wraps the broker's refusal or a connect timeout.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned when publishing while the broker link is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed wraps publish timeouts, broker errors and oversized payloads.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
