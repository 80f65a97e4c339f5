// Package influxdb records device state history in InfluxDB v2.
//
// Each relayed state change becomes one device_state point tagged with
// the device id, room and type. Dashboards can then chart when lights
// were on and which devices dropped offline.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
//	defer client.Close()
//
//	client.WriteDeviceState(d, time.Now())
//
// Writes are batched according to batch_size and flush_interval and never
// block the caller. Batch failures are reported through SetOnError.
package influxdb
