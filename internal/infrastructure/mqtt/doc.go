// Package mqtt is the site broker link.
//
// Outbound, the command facade publishes one JSON message per device command
// on perimeter/command/{kind}/{device_id} at the configured QoS (1 unless set).
// Inbound, the sensor bridge subscribes to perimeter/sensor/+/event and
// perimeter/sensor/+/status. The core's presence is retained on
// perimeter/system/status, with a will that marks it offline if the
// connection drops without Close.
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishCommand(ctx, "deterrent_emitter", "lrad_01", payload)
package mqtt
