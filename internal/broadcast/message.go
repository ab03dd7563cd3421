package broadcast

import "time"

// Topics carried by the pipeline.
const (
	TopicEvents    = "events"
	TopicResponses = "responses"
	TopicDevices   = "devices"
	TopicSystem    = "system"
)

// Message types.
const (
	TypeEvent         = "event"
	TypeEventStatus   = "event_status"
	TypeResponse      = "response"
	TypeAdvisory      = "advisory"
	TypeDeviceCreated = "device_created"
	TypeDeviceStatus  = "device_status"
	TypeSystem        = "system"
	TypeVendor        = "vendor"
)

// TimestampLayout is RFC 3339 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is the envelope delivered to observers.
// Source and Channel are set only on vendor pass-through messages.
type Message struct {
	Type      string `json:"type"`
	Source    string `json:"source,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewMessage builds an envelope stamped with at.
func NewMessage(msgType string, data any, at time.Time) Message {
	return Message{Type: msgType, Data: data, Timestamp: FormatTimestamp(at)}
}

// NewVendorMessage builds a pass-through envelope for a vendor bus message.
func NewVendorMessage(source, channel string, data any, at time.Time) Message {
	return Message{
		Type:      TypeVendor,
		Source:    source,
		Channel:   channel,
		Data:      data,
		Timestamp: FormatTimestamp(at),
	}
}

// FormatTimestamp renders t in the envelope timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
