package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/perimeter-core/internal/event"
)

// Measurements.
const (
	MeasurementEvents    = "perimeter_events"
	MeasurementResponses = "perimeter_responses"
)

// WriteEvent records an ingested event. Writes are dropped while disconnected.
func (c *Client) WriteEvent(ev *event.Event) {
	if ev == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(eventPoint(ev))
}

// WriteResponse records a completed response.
func (c *Client) WriteResponse(resp *event.Response) {
	if resp == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(responsePoint(resp))
}

// eventPoint tags by low-cardinality dimensions; identifiers go in fields.
func eventPoint(ev *event.Event) *write.Point {
	tags := map[string]string{
		"type":   ev.Type,
		"source": ev.Source,
	}
	if ev.ZoneID != "" {
		tags["zone_id"] = ev.ZoneID
	}
	if ev.DeviceID != "" {
		tags["device_id"] = ev.DeviceID
	}

	fields := map[string]any{
		"event_id":   ev.ID,
		"confidence": ev.Confidence,
	}
	if ev.Location != nil {
		fields["lat"] = ev.Location.Lat
		fields["lng"] = ev.Location.Lng
	}
	return write.NewPoint(MeasurementEvents, tags, fields, ev.Timestamp)
}

func responsePoint(resp *event.Response) *write.Point {
	tags := map[string]string{
		"action":    string(resp.Action),
		"status":    string(resp.Status),
		"device_id": resp.TargetDeviceID,
		"manual":    boolTag(resp.OperatorID != ""),
	}

	fields := map[string]any{
		"response_id": resp.ID,
		"event_id":    resp.EventID,
		"success":     resp.Status == event.ResponseExecuted,
	}
	at := resp.CreatedAt
	if resp.CompletedAt != nil {
		fields["latency_ms"] = resp.CompletedAt.Sub(resp.CreatedAt).Milliseconds()
		at = *resp.CompletedAt
	}
	if resp.Reason != "" {
		fields["reason"] = resp.Reason
	}
	return write.NewPoint(MeasurementResponses, tags, fields, at)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
