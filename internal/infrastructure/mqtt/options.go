package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/perimeter-core/internal/infrastructure/config"
)

const (
	connectTimeout  = 10 * time.Second
	keepAlive       = 30 * time.Second
	disconnectQuiet = 500 // ms
	statusTimeout   = 2 * time.Second

	// maxPayloadSize caps one command message.
	maxPayloadSize = 256 << 10

	// defaultQoS is at-least-once. Devices treat command IDs as idempotency
	// keys, and the gateway dedups sensor reports.
	defaultQoS byte = 1
)

// presence is the retained body on SystemStatus.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func presencePayload(clientID, status, reason string, at time.Time) []byte {
	//nolint:errcheck // A struct of strings always encodes
	b, _ := json.Marshal(presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: at.UTC().Format(time.RFC3339),
	})
	return b
}

// qosFor maps the configured QoS onto a valid level, defaulting to 1.
func qosFor(cfg config.MQTTConfig) byte {
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return defaultQoS
	}
	return byte(cfg.QoS)
}

// clientOptions builds paho options for cfg with c's lifecycle hooks attached.
func clientOptions(cfg config.MQTTConfig, c *Client) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(seconds(cfg.Reconnect.InitialDelay, time.Second)).
		SetMaxReconnectInterval(seconds(cfg.Reconnect.MaxDelay, time.Minute)).
		// Sensor handlers call into the gateway and may wait on storage;
		// they must not stall the network loop.
		SetOrderMatters(false).
		SetBinaryWill(SystemStatus,
			presencePayload(cfg.Broker.ClientID, "offline", "connection_lost", time.Now()), defaultQoS, true).
		SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onLost(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) { c.log().Warn("mqtt reconnecting") })

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
