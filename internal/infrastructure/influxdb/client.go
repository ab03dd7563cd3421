package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/perimeter-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	millisecondsPerSecond = 1000
)

// Client records event and response telemetry in InfluxDB.
//
// Writes are non-blocking and batched; errors surface through SetOnError.
// All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	connected bool
	mu        sync.RWMutex

	onError func(err error)
}

// Connect creates the client, verifies the server with a ping bounded by ctx,
// and starts the batched write API.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := newClient(client, client.WriteAPI(cfg.Org, cfg.Bucket), cfg)
	return c, nil
}

func newClient(client influxdb2.Client, writeAPI api.WriteAPI, cfg config.InfluxDBConfig) *Client {
	c := &Client{
		client:    client,
		writeAPI:  writeAPI,
		cfg:       cfg,
		connected: true,
	}
	go c.handleWriteErrors(writeAPI.Errors())
	return c
}

func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Close flushes pending writes and closes the client. Safe on a nil client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		c.writeAPI.Flush()
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
