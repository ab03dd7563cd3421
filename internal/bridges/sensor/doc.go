// Package sensor bridges on-site sensors reporting over MQTT into the
// ingest gateway.
//
//	perimeter/sensor/{device_id}/event   JSON raw event → Gateway.Ingest
//	perimeter/sensor/{device_id}/status  {"status":"online"} → Gateway.UpdateDeviceStatus
//
// The device ID in the topic is used when the payload omits one. Malformed
// payloads are reported to the MQTT client's handler error log and dropped.
package sensor
