// Package mqtt connects dashsync to an MQTT broker.
//
// The relay uses it to mirror device state and to accept commands:
//
//	{prefix}/state/{device_id}       retained device JSON; empty clears it
//	{prefix}/system/status           retained online/offline, also the LWT
//	{prefix}/command/refresh         forced poll
//	{prefix}/command/toggle/{id}     {"isOn": bool}
//	{prefix}/command/scene/{id}      execute a scene
//	{prefix}/command/routine/{id}    execute a routine
//
// The prefix comes from mqtt.topic_prefix and defaults to "dashsync".
//
// Connect blocks until the broker accepts the session or the connect
// timeout elapses. After that paho reconnects in the background with the
// configured backoff, and tracked subscriptions are restored on every
// reconnect.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllCommands(), 1, handle)
package mqtt
