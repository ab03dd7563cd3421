package mqtt

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/perimeter-core/internal/infrastructure/config"
)

// MessageHandler handles one inbound message. Handlers run concurrently.
// A returned error is logged; the message is still acknowledged.
type MessageHandler func(topic string, payload []byte) error

// Logger is the logging interface used by the client.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is the broker link for device commands and sensor reports.
//
// Sensor subscriptions are kept as paho routes and re-subscribed in one
// batch after every reconnect, since sessions are clean.
type Client struct {
	client   pahomqtt.Client
	clientID string
	qos      byte

	mu      sync.Mutex
	filters map[string]byte
	logger  Logger
	now     func() time.Time
}

// Connect dials the broker and waits until the session is up or ctx ends.
// The wait is also capped at connectTimeout.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)
	c.client = pahomqtt.NewClient(clientOptions(cfg, c))

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := wait(ctx, c.client.Connect()); err != nil {
		// ConnectRetry keeps dialling in the background until told to stop.
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnect, cfg.Broker.Host, cfg.Broker.Port, err)
	}
	return c, nil
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		clientID: cfg.Broker.ClientID,
		qos:      qosFor(cfg),
		filters:  make(map[string]byte),
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for connection and handler diagnostics.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// PublishCommand sends payload to perimeter/command/{kind}/{deviceID} at the
// configured QoS and waits for the broker's acknowledgement or ctx.
func (c *Client) PublishCommand(ctx context.Context, kind, deviceID string, payload []byte) error {
	topic, err := CommandTopic(kind, deviceID)
	if err != nil {
		return fmt.Errorf("%w: %q/%q", err, kind, deviceID)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	return c.publish(ctx, topic, payload, c.qos, false)
}

func (c *Client) publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := wait(ctx, c.client.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublish, topic, err)
	}
	return nil
}

// Subscribe routes messages matching filter to handler and subscribes at
// the configured QoS. The route survives reconnects until Unsubscribe.
func (c *Client) Subscribe(filter string, handler MessageHandler) error {
	if filter == "" || handler == nil {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.client.AddRoute(filter, c.dispatch(handler))
	if err := wait(context.Background(), c.client.Subscribe(filter, c.qos, nil)); err != nil {
		c.client.Unsubscribe(filter) // drops the route
		return fmt.Errorf("%w: %s: %w", ErrSubscribe, filter, err)
	}

	c.mu.Lock()
	c.filters[filter] = c.qos
	c.mu.Unlock()
	return nil
}

// Unsubscribe drops filter and its route. Unknown filters are ignored.
func (c *Client) Unsubscribe(filter string) error {
	c.mu.Lock()
	_, known := c.filters[filter]
	delete(c.filters, filter)
	c.mu.Unlock()
	if !known || !c.IsConnected() {
		return nil
	}
	return wait(context.Background(), c.client.Unsubscribe(filter))
}

// dispatch adapts handler to paho, logging errors and recovering panics so
// one bad sensor message cannot take down the network goroutine.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("mqtt handler panic", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("mqtt message rejected", "topic", msg.Topic(), "error", err)
		}
	}
}

// onConnect runs on the first connect and every reconnect.
func (c *Client) onConnect() {
	c.mu.Lock()
	filters := maps.Clone(c.filters)
	c.mu.Unlock()

	if len(filters) > 0 {
		// Routes are still registered; a nil callback dispatches through them.
		token := c.client.SubscribeMultiple(filters, nil)
		go func() {
			if err := wait(context.Background(), token); err != nil {
				c.log().Error("mqtt resubscribe failed", "filters", len(filters), "error", err)
			}
		}()
	}
	c.client.Publish(SystemStatus, c.qos, true, presencePayload(c.clientID, "online", "", c.now()))
	c.log().Info("mqtt connected", "client_id", c.clientID, "restored_filters", len(filters))
}

func (c *Client) onLost(err error) {
	c.log().Warn("mqtt connection lost", "error", err)
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Close publishes a graceful offline presence and disconnects. Closing twice
// is harmless.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
		//nolint:errcheck // Best effort; the will covers a failed publish
		c.publish(ctx, SystemStatus, presencePayload(c.clientID, "offline", "shutdown", c.now()), c.qos, true)
		cancel()
	}
	c.client.Disconnect(disconnectQuiet)
	return nil
}

// wait blocks until token completes or ctx ends. Every broker round trip
// goes through here so no caller waits unbounded.
func wait(ctx context.Context, token pahomqtt.Token) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
