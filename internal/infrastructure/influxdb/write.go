package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

// MeasurementDeviceState is the measurement written for every state change.
const MeasurementDeviceState = "device_state"

// WriteDeviceState records one device snapshot:
//
//	device_state,device_id=..,room=..,type=.. is_on=0|1,online=0|1[,value=..]
//
// The write is non-blocking and a no-op on a closed client.
func (c *Client) WriteDeviceState(d device.Device, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writes.WritePoint(deviceStatePoint(d, at))
}

func deviceStatePoint(d device.Device, at time.Time) *write.Point {
	tags := map[string]string{
		"device_id": d.ID,
		"type":      string(d.Type),
	}
	if d.Room != "" {
		tags["room"] = d.Room
	}

	fields := map[string]any{
		"is_on":  boolToInt(d.IsOn),
		"online": boolToInt(d.IsOnline),
	}
	if v, ok := numericValue(d.Value); ok {
		fields["value"] = v
	}

	return write.NewPoint(MeasurementDeviceState, tags, fields, at)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// numericValue extracts a float from the loosely typed device value.
// Strings, booleans and nil are not recorded.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
