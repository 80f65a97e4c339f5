package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/mqtt"
)

// Publisher is the slice of *mqtt.Client the MQTT sink uses.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	Topics() mqtt.Topics
}

// MQTTSink mirrors each device as a retained JSON message on
// {prefix}/state/{id}. Removed devices get an empty retained payload,
// which clears the topic on the broker.
type MQTTSink struct {
	pub Publisher
}

// NewMQTTSink returns a sink publishing through pub.
func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Publish implements Sink. Every message is attempted; the errors are
// joined.
func (s *MQTTSink) Publish(_ context.Context, change Change) error {
	topics := s.pub.Topics()
	var errs []error

	for i := range change.Changed {
		d := &change.Changed[i]
		payload, err := json.Marshal(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("encoding device %s: %w", d.ID, err))
			continue
		}
		if err := s.pub.PublishRetained(topics.DeviceState(d.ID), payload); err != nil {
			errs = append(errs, fmt.Errorf("publishing device %s: %w", d.ID, err))
		}
	}
	for _, id := range change.Removed {
		if err := s.pub.PublishRetained(topics.DeviceState(id), nil); err != nil {
			errs = append(errs, fmt.Errorf("clearing device %s: %w", id, err))
		}
	}

	return errors.Join(errs...)
}

// PointWriter is the slice of *influxdb.Client the Influx sink uses.
type PointWriter interface {
	WriteDeviceState(d device.Device, at time.Time)
}

// InfluxSink records a device_state point for every changed device.
// Removals are not recorded.
type InfluxSink struct {
	writer PointWriter
	now    func() time.Time
}

// NewInfluxSink returns a sink writing through w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{writer: w, now: time.Now}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Publish implements Sink. Writes are batched by the client, so this
// never fails.
func (s *InfluxSink) Publish(_ context.Context, change Change) error {
	at := s.now()
	for _, d := range change.Changed {
		s.writer.WriteDeviceState(d, at)
	}
	return nil
}
