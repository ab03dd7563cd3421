package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nerrad567/perimeter-core/internal/broadcast"
	"github.com/nerrad567/perimeter-core/internal/metrics"
)

// Defaults.
const (
	DefaultSubjectPrefix = "perimeter"
	DefaultMaxRetries    = 3
	DefaultQueueSize     = 1024

	retryStep   = 100 * time.Millisecond
	clientName  = "perimeter-core"
	observerTag = "relay:"
)

// Conn is the NATS surface the relay needs. *nats.Conn satisfies it.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Registry is the broadcast observer registry.
type Registry interface {
	RegisterInternal(observerID string, sink broadcast.Sink, topics ...string)
	Deregister(observerID string) bool
}

// Logger is the logging interface used by the relay.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures a Relay. Zero values select the defaults.
type Config struct {
	SubjectPrefix string
	MaxRetries    int
	QueueSize     int
	// Topics to relay. Empty selects the four pipeline topics.
	Topics []string
}

// Relay forwards broadcast topics to NATS subjects.
type Relay struct {
	conn     Conn
	registry Registry
	cfg      Config
	logger   Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Connect dials NATS with unlimited reconnects.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name(clientName), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return nc, nil
}

// New creates a relay. It does not observe anything until Start.
func New(conn Conn, registry Registry, cfg Config) *Relay {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = []string{
			broadcast.TopicEvents,
			broadcast.TopicResponses,
			broadcast.TopicDevices,
			broadcast.TopicSystem,
		}
	}
	return &Relay{conn: conn, registry: registry, cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (r *Relay) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetMetrics sets the metrics sink.
func (r *Relay) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Subject returns the NATS subject for a broadcast topic.
func (r *Relay) Subject(topic string) string {
	return r.cfg.SubjectPrefix + "." + strings.ReplaceAll(topic, ":", ".")
}

// Start registers one observer per topic and starts draining them.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)

	for _, topic := range r.cfg.Topics {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.drain(ctx, topic)
		}()
	}
	r.logger.Info("relay started", "topics", r.cfg.Topics, "prefix", r.cfg.SubjectPrefix)
}

// Stop deregisters the relay observers and waits for the drains to exit.
// Queued messages are discarded.
func (r *Relay) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	for _, topic := range r.cfg.Topics {
		r.registry.Deregister(observerTag + topic)
	}
	r.wg.Wait()
	r.logger.Info("relay stopped")
}

// drain registers a sink for topic and publishes its messages until ctx
// ends, re-registering whenever the registry evicts the sink.
func (r *Relay) drain(ctx context.Context, topic string) {
	id := observerTag + topic
	subject := r.Subject(topic)
	defer r.registry.Deregister(id)

	for {
		sink := broadcast.NewQueueSink(r.cfg.QueueSize)
		r.registry.RegisterInternal(id, sink, topic)

		if !r.consume(ctx, sink, subject) {
			return
		}
		r.logger.Warn("relay observer evicted, re-registering", "topic", topic)
		r.metrics.RelayPublished("evicted")
	}
}

// consume publishes from sink until ctx ends (false) or the sink is closed
// by the registry (true).
func (r *Relay) consume(ctx context.Context, sink *broadcast.QueueSink, subject string) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case payload, ok := <-sink.Messages():
			if !ok {
				return ctx.Err() == nil
			}
			r.publish(ctx, subject, payload)
		}
	}
}

func (r *Relay) publish(ctx context.Context, subject string, payload []byte) {
	var err error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if err = r.conn.Publish(subject, payload); err == nil {
			r.metrics.RelayPublished("ok")
			return
		}
		if attempt == r.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt+1) * retryStep):
		}
	}
	r.metrics.RelayPublished("failed")
	r.logger.Error("relay publish failed", "subject", subject, "retries", r.cfg.MaxRetries, "error", err)
}
