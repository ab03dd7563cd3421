package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/perimeter-core/internal/infrastructure/config"
)

// testConfig targets a local broker. Tests tagged integration need one
// listening at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:    config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883, ClientID: "perimeter-test"},
		QoS:       1,
		Reconnect: config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 5},
	}
}

func TestCommandTopic(t *testing.T) {
	tests := []struct {
		kind, id string
		want     string
		wantErr  bool
	}{
		{"deterrent_emitter", "lrad_01", "perimeter/command/deterrent_emitter/lrad_01", false},
		{"relay_bank", "adam_01", "perimeter/command/relay_bank/adam_01", false},
		{"", "lrad_01", "", true},
		{"ptz_camera", "", "", true},
		{"ptz_camera", "a/b", "", true},
		{"ptz_camera", "+", "", true},
		{"#", "ptz_01", "", true},
	}
	for _, tt := range tests {
		got, err := CommandTopic(tt.kind, tt.id)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("CommandTopic(%q, %q) = %q, %v", tt.kind, tt.id, got, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("CommandTopic(%q, %q) error = %v, want ErrInvalidTopic", tt.kind, tt.id, err)
		}
	}
}

func TestParseSensorTopic(t *testing.T) {
	tests := []struct {
		topic      string
		wantID     string
		wantReport SensorReport
		wantOK     bool
	}{
		{SensorTopic("thermal_01", ReportEvent), "thermal_01", ReportEvent, true},
		{SensorTopic("boomerang_01", ReportStatus), "boomerang_01", ReportStatus, true},
		{"perimeter/sensor//event", "", "", false},
		{"perimeter/sensor/a/b/event", "", "", false},
		{"perimeter/sensor/thermal_01/battery", "", "", false},
		{"perimeter/command/ptz_camera/ptz_01", "", "", false},
		{"other/sensor/x/event", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, report, ok := ParseSensorTopic(tt.topic)
			if id != tt.wantID || report != tt.wantReport || ok != tt.wantOK {
				t.Errorf("ParseSensorTopic(%q) = %q, %q, %v", tt.topic, id, report, ok)
			}
		})
	}
}

func TestFiltersMatchSensorTopics(t *testing.T) {
	if SensorEvents != SensorTopic("+", ReportEvent) {
		t.Errorf("SensorEvents = %q", SensorEvents)
	}
	if SensorStatus != SensorTopic("+", ReportStatus) {
		t.Errorf("SensorStatus = %q", SensorStatus)
	}
}

func TestPresencePayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var p presence
	if err := json.Unmarshal(presencePayload("perimeter-core", "offline", "shutdown", at), &p); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := presence{Status: "offline", ClientID: "perimeter-core", Reason: "shutdown", Timestamp: "2026-03-01T12:00:00Z"}
	if p != want {
		t.Errorf("presence = %+v, want %+v", p, want)
	}
}

func TestQoSFor(t *testing.T) {
	for in, want := range map[int]byte{0: 0, 1: 1, 2: 2, 3: defaultQoS, -1: defaultQoS} {
		if got := qosFor(config.MQTTConfig{QoS: in}); got != want {
			t.Errorf("qosFor(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "core", Password: "secret"}
	cfg.Broker.TLS = true
	cfg.Reconnect = config.MQTTReconnectConfig{}

	opts := clientOptions(cfg, newClient(cfg))

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "perimeter-test" || opts.Username != "core" {
		t.Errorf("ClientID/Username = %q/%q", opts.ClientID, opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLS config not applied")
	}
	if !opts.AutoReconnect || !opts.ConnectRetry || opts.Order {
		t.Errorf("AutoReconnect=%v ConnectRetry=%v Order=%v", opts.AutoReconnect, opts.ConnectRetry, opts.Order)
	}
	if opts.ConnectRetryInterval != time.Second || opts.MaxReconnectInterval != time.Minute {
		t.Errorf("retry intervals = %v/%v, want defaults", opts.ConnectRetryInterval, opts.MaxReconnectInterval)
	}
	if !opts.WillEnabled || opts.WillTopic != SystemStatus || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
}

func TestDisconnectedClient(t *testing.T) {
	c := newClient(testConfig())
	ctx := context.Background()

	if c.IsConnected() {
		t.Fatal("client without a session reports connected")
	}
	if err := c.PublishCommand(ctx, "ptz_camera", "a/b", []byte("{}")); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("PublishCommand(bad id) = %v, want ErrInvalidTopic", err)
	}
	if err := c.PublishCommand(ctx, "ptz_camera", "ptz_01", make([]byte, maxPayloadSize+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("PublishCommand(oversize) = %v, want ErrPayloadTooLarge", err)
	}
	if err := c.PublishCommand(ctx, "ptz_camera", "ptz_01", []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishCommand(disconnected) = %v, want ErrNotConnected", err)
	}
	if err := c.Subscribe(SensorEvents, nil); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(nil handler) = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe(SensorEvents, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) = %v, want ErrNotConnected", err)
	}
	if err := c.Unsubscribe(SensorEvents); err != nil {
		t.Errorf("Unsubscribe(unknown) = %v", err)
	}
	if err := c.HealthCheck(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := c.HealthCheck(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v, want context.Canceled", err)
	}
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type recordingLogger struct {
	noopLogger
	warns, errors []string
}

func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }

func TestDispatch(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)
	msg := fakeMessage{topic: SensorTopic("thermal_01", ReportEvent), payload: []byte(`{"confidence":0.9}`)}

	var got string
	c.dispatch(func(topic string, payload []byte) error {
		got = topic + " " + string(payload)
		return nil
	})(nil, msg)
	if got != msg.topic+` {"confidence":0.9}` {
		t.Errorf("handler saw %q", got)
	}

	c.dispatch(func(string, []byte) error { return errors.New("bad reading") })(nil, msg)
	if len(logger.warns) != 1 {
		t.Errorf("handler error logged %d times, want 1", len(logger.warns))
	}

	c.dispatch(func(string, []byte) error { panic("boom") })(nil, msg)
	if len(logger.errors) != 1 {
		t.Errorf("handler panic logged %d times, want 1", len(logger.errors))
	}
}

// stubToken completes with err once done is closed.
type stubToken struct {
	pahomqtt.Token
	done chan struct{}
	err  error
}

func (s *stubToken) Done() <-chan struct{} { return s.done }
func (s *stubToken) Error() error          { return s.err }

func TestWait(t *testing.T) {
	brokerErr := errors.New("not authorised")
	done := make(chan struct{})
	close(done)
	if err := wait(context.Background(), &stubToken{done: done, err: brokerErr}); !errors.Is(err, brokerErr) {
		t.Errorf("wait(completed) = %v, want broker error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := wait(ctx, &stubToken{done: make(chan struct{})}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("wait(stalled) = %v, want deadline exceeded", err)
	}
}
