package mqtt

import "fmt"

// maxPayloadSize is the largest payload Publish accepts (1 MiB).
const maxPayloadSize = 1 << 20

// Publish sends payload to topic. For QoS 1 and 2 it returns once the
// broker has acknowledged the message.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d byte payload over the %d byte limit", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}
	return await(c.paho.Publish(topic, qos, retained, payload), defaultPublishTimeout, ErrPublishFailed)
}

// PublishRetained publishes at the default QoS with the retain flag set.
// An empty payload deletes the retained message, which is how removed
// devices disappear from the broker.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, c.qos, true)
}
