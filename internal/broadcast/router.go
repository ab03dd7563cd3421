package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/perimeter-core/internal/metrics"
)

// Router publishes messages to the observers registered in a Registry.
type Router struct {
	registry *Registry
	logger   Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewRouter creates a router over registry.
func NewRouter(registry *Registry) *Router {
	return &Router{
		registry: registry,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// SetMetrics attaches delivery counters.
func (r *Router) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Registry returns the registry the router publishes through.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Notify publishes data on topic wrapped in a fresh envelope of msgType.
func (r *Router) Notify(topic, msgType string, data any) {
	r.Publish(topic, NewMessage(msgType, data, r.now()))
}

// Publish delivers msg to every observer of topic. It never blocks on an
// observer and never fails: an observer whose sink rejects the message is
// deregistered and the rest still receive it. A message that cannot be
// serialized is logged and dropped.
func (r *Router) Publish(topic string, msg Message) {
	if msg.Timestamp == "" {
		msg.Timestamp = FormatTimestamp(r.now())
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("dropping unserializable message", "topic", topic, "type", msg.Type, "error", err)
		return
	}

	targets := r.registry.SnapshotFor(topic)
	delivered := 0
	for _, t := range targets {
		if err := deliver(t.Sink, payload); err != nil {
			if r.registry.evict(t) {
				r.metrics.Evicted(evictReason(err))
				r.logger.Warn("observer evicted", "observer_id", t.ObserverID, "topic", topic, "error", err)
			}
			continue
		}
		delivered++
		r.metrics.Delivered(topic)
	}

	if len(targets) > 0 {
		r.logger.Debug("broadcast sent", "topic", topic, "type", msg.Type, "recipients", delivered)
	}
}

// deliver calls s.Deliver, converting a panic into an error.
func deliver(s Sink, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("broadcast: sink panicked: %v", p)
		}
	}()
	return s.Deliver(payload)
}

func evictReason(err error) string {
	switch {
	case errors.Is(err, ErrSinkOverflow):
		return "overflow"
	case errors.Is(err, ErrSinkClosed):
		return "closed"
	default:
		return "error"
	}
}
