package mqtt

import "errors"

// Sentinel errors for MQTT operations.
// Use errors.Is to test for them through wrapped errors.
var (
	// ErrConnectionFailed indicates the initial broker connection failed.
	ErrConnectionFailed = errors.New("mqtt connection failed")

	// ErrNotConnected indicates an operation was attempted while disconnected.
	ErrNotConnected = errors.New("mqtt client not connected")

	// ErrPublishFailed indicates a publish was not acknowledged.
	ErrPublishFailed = errors.New("mqtt publish failed")

	// ErrSubscribeFailed indicates a subscribe or unsubscribe was rejected.
	ErrSubscribeFailed = errors.New("mqtt subscribe failed")

	// ErrInvalidQoS indicates a QoS level outside 0-2.
	ErrInvalidQoS = errors.New("invalid qos level")

	// ErrMarshalFailed indicates a payload could not be serialized to JSON.
	ErrMarshalFailed = errors.New("payload marshal failed")
)
