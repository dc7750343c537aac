package mqtt

import "errors"

// Sentinel errors. Transport failures wrap one of these together with the
// underlying paho error, so callers match with errors.Is.
var (
	ErrDisabled         = errors.New("mqtt: disabled in configuration")
	ErrNotConnected     = errors.New("mqtt: not connected to broker")
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	ErrInvalidTopic = errors.New("mqtt: empty topic")
	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrUnknownCommand is returned for a command action the bridge does not handle.
	ErrUnknownCommand = errors.New("mqtt: unknown command")
)
