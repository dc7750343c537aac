package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publish sends payload to topic.
//
// Parameters:
//   - topic: full topic, e.g. client.Topics().Progress()
//   - payload: message body, at most 1 MiB
//   - qos: 0, 1 or 2
//   - retained: keep as the topic's last known value (state and progress)
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or
//     ErrPublishFailed wrapping the broker error or ack timeout
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.conn.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishString publishes a text payload.
func (c *Client) PublishString(topic, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

func checkTopic(topic string, qos byte) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	}
	return nil
}

// await blocks until the broker acknowledges token or ackTimeout elapses.
// Failures are wrapped in sentinel.
func await(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: no ack within %v", sentinel, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
