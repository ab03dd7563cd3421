package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/perimeter-core/internal/ingest"
)

type mockSubscriber struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
	failOn   string
}

func (m *mockSubscriber) Subscribe(topic string, h mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if topic == m.failOn {
		return errors.New("not connected")
	}
	if m.handlers == nil {
		m.handlers = map[string]mqtt.MessageHandler{}
	}
	m.handlers[topic] = h
	return nil
}

func (m *mockSubscriber) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockSubscriber) deliver(pattern, topic, payload string) error {
	m.mu.Lock()
	h := m.handlers[pattern]
	m.mu.Unlock()
	return h(topic, []byte(payload))
}

type mockGateway struct {
	raws     []ingest.RawEvent
	statuses map[string]string
	err      error
}

func (g *mockGateway) Ingest(_ context.Context, raw ingest.RawEvent) (*event.Event, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.raws = append(g.raws, raw)
	return &event.Event{ID: "evt-1", Type: raw.Type}, nil
}

func (g *mockGateway) UpdateDeviceStatus(_ context.Context, id, status string) (*device.Device, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.statuses == nil {
		g.statuses = map[string]string{}
	}
	g.statuses[id] = status
	return &device.Device{ID: id, Status: device.Status(status)}, nil
}


func startBridge(t *testing.T) (*Bridge, *mockSubscriber, *mockGateway) {
	t.Helper()
	sub := &mockSubscriber{}
	gw := &mockGateway{}
	b := New(sub, gw)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, sub, gw
}

func TestBridge_EventDefaultsDeviceFromTopic(t *testing.T) {
	_, sub, gw := startBridge(t)

	err := sub.deliver(mqtt.SensorEvents, mqtt.SensorTopic("thermal_01", mqtt.ReportEvent),
		`{"type":"thermal","confidence":0.8,"location":{"lat":1,"lon":2}}`)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(gw.raws) != 1 {
		t.Fatalf("ingested %d events, want 1", len(gw.raws))
	}
	raw := gw.raws[0]
	if raw.DeviceID != "thermal_01" || raw.Source != event.SourceSensor || raw.Location.Lng != 2 {
		t.Errorf("raw = %+v", raw)
	}
}

func TestBridge_EventKeepsPayloadDevice(t *testing.T) {
	_, sub, gw := startBridge(t)

	if err := sub.deliver(mqtt.SensorEvents, mqtt.SensorTopic("gw_01", mqtt.ReportEvent),
		`{"type":"motion","confidence":0.5,"device_id":"pir_07"}`); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if gw.raws[0].DeviceID != "pir_07" {
		t.Errorf("DeviceID = %q, want pir_07", gw.raws[0].DeviceID)
	}
}

func TestBridge_Status(t *testing.T) {
	_, sub, gw := startBridge(t)

	if err := sub.deliver(mqtt.SensorStatus, mqtt.SensorTopic("ptz_01", mqtt.ReportStatus), `{"status":" Online "}`); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if gw.statuses["ptz_01"] != "online" {
		t.Errorf("statuses = %v", gw.statuses)
	}
}

func TestBridge_Errors(t *testing.T) {
	_, sub, gw := startBridge(t)

	tests := []struct {
		name    string
		pattern string
		topic   string
		payload string
		want    error
	}{
		{"event not json", mqtt.SensorEvents, mqtt.SensorTopic("a", mqtt.ReportEvent), `{`, ErrMalformed},
		{"status not json", mqtt.SensorStatus, mqtt.SensorTopic("a", mqtt.ReportStatus), `nope`, ErrMalformed},
		{"status empty", mqtt.SensorStatus, mqtt.SensorTopic("a", mqtt.ReportStatus), `{}`, ErrMalformed},
		{"bad topic", mqtt.SensorEvents, "perimeter/sensor/event", `{}`, ErrTopic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := sub.deliver(tt.pattern, tt.topic, tt.payload); !errors.Is(err, tt.want) {
				t.Errorf("handler error = %v, want %v", err, tt.want)
			}
		})
	}

	gw.err = ingest.ErrStorage
	err := sub.deliver(mqtt.SensorEvents, mqtt.SensorTopic("a", mqtt.ReportEvent), `{"type":"motion","confidence":0.5}`)
	if !errors.Is(err, ingest.ErrStorage) {
		t.Errorf("gateway error = %v, want wrapped ErrStorage", err)
	}
}

func TestBridge_StartFailureRollsBack(t *testing.T) {
	sub := &mockSubscriber{failOn: mqtt.SensorStatus}
	b := New(sub, &mockGateway{})

	if err := b.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when a subscription fails")
	}
	if len(sub.handlers) != 0 {
		t.Errorf("handlers left subscribed: %v", sub.handlers)
	}
}

func TestBridge_StopUnsubscribes(t *testing.T) {
	b, sub, _ := startBridge(t)
	b.Stop()
	b.Stop()

	if len(sub.handlers) != 0 {
		t.Errorf("handlers after Stop: %d", len(sub.handlers))
	}
}
