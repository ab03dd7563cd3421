// Package influxdb records perimeter telemetry in InfluxDB v2.
//
// Two measurements are written:
//
//	perimeter_events     one point per ingested event (tags: type, source, zone_id, device_id)
//	perimeter_responses  one point per completed response (tags: action, status, device_id, manual)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	gateway.SetTelemetry(client)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Write failures are delivered to the SetOnError callback;
// they never reach the ingest path.
package influxdb
