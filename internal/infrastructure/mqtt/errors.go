package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when every connection attempt failed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic or one containing
	// wildcards is used for publishing.
	ErrInvalidTopic = errors.New("mqtt: invalid publish topic")

	// ErrInvalidBrokerURI is returned when the configured broker URI cannot be used.
	ErrInvalidBrokerURI = errors.New("mqtt: invalid broker URI")

	// ErrKeystoreMissing is returned when a secure URI is configured but the
	// keystore file for the broker host does not exist.
	ErrKeystoreMissing = errors.New("mqtt: keystore not found")

	// ErrKeystoreInvalid is returned when the keystore cannot be read or decoded.
	ErrKeystoreInvalid = errors.New("mqtt: keystore unreadable")

	// ErrKeystorePassword is returned when the keystore password is wrong.
	ErrKeystorePassword = errors.New("mqtt: keystore password incorrect")

	// ErrClosed is returned by a ConnectionManager after Close.
	ErrClosed = errors.New("mqtt: connection manager closed")
)
