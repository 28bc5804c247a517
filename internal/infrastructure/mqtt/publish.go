package mqtt

import "fmt"

// maxPayloadSize caps a single message at 1MB.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}
	return waitToken(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishEvent publishes a session event to schoolhub/core/event/{type}
// with the configured QoS. Events are never retained.
func (c *Client) PublishEvent(eventType string, payload []byte) error {
	if eventType == "" {
		return ErrInvalidTopic
	}
	return c.Publish(Topics{}.CoreEvent(eventType), payload, byte(c.cfg.QoS), false)
}
