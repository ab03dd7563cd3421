package broadcast

import (
	"sort"
	"sync"

	"github.com/nerrad567/perimeter-core/internal/metrics"
)

// Logger defines the logging interface used by the broadcast package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Target is one observer in a snapshot.
type Target struct {
	ObserverID string
	Sink       Sink

	// generation identifies the registration this target was taken from,
	// so a late eviction cannot remove a newer registration of the same ID.
	generation uint64
}

type entry struct {
	sink       Sink
	topics     map[string]struct{}
	generation uint64
	internal   bool
}

// Registry is the set of connected observers and their topic subscriptions.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextGen uint64

	logger  Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetMetrics attaches the observer gauge.
func (r *Registry) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Register adds an observer subscribed to topics (none: every topic). A
// previous registration under the same ID is replaced and its sink closed.
func (r *Registry) Register(observerID string, sink Sink, topics ...string) {
	r.register(observerID, sink, false, topics)
}

// RegisterInternal adds an in-process observer, such as a relay. It receives
// broadcasts like any other observer but is left out of Count and the
// observer gauge.
func (r *Registry) RegisterInternal(observerID string, sink Sink, topics ...string) {
	r.register(observerID, sink, true, topics)
}

func (r *Registry) register(observerID string, sink Sink, internal bool, topics []string) {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	r.mu.Lock()
	old := r.entries[observerID]
	r.nextGen++
	r.entries[observerID] = &entry{
		sink:       sink,
		topics:     set,
		generation: r.nextGen,
		internal:   internal,
	}
	count := r.observersLocked()
	r.mu.Unlock()

	if old != nil {
		closeSink(old.sink)
		r.logger.Debug("observer re-registered", "observer_id", observerID)
	}
	r.metrics.SetObservers(count)
	r.logger.Debug("observer registered", "observer_id", observerID, "internal", internal, "observers", count)
}

// Deregister removes an observer and closes its sink.
// It reports whether the observer was registered; repeated calls are no-ops.
func (r *Registry) Deregister(observerID string) bool {
	r.mu.Lock()
	e, ok := r.entries[observerID]
	if ok {
		delete(r.entries, observerID)
	}
	count := r.observersLocked()
	r.mu.Unlock()

	if !ok {
		return false
	}
	closeSink(e.sink)
	r.metrics.SetObservers(count)
	r.logger.Debug("observer deregistered", "observer_id", observerID, "observers", count)
	return true
}

// evict deregisters t only if its registration is still current.
func (r *Registry) evict(t Target) bool {
	r.mu.Lock()
	e, ok := r.entries[t.ObserverID]
	if !ok || e.generation != t.generation {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, t.ObserverID)
	count := r.observersLocked()
	r.mu.Unlock()

	closeSink(e.sink)
	r.metrics.SetObservers(count)
	return true
}

// Subscribe adds topic to the observer's set. Unknown observers are ignored.
func (r *Registry) Subscribe(observerID, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[observerID]
	if !ok {
		return false
	}
	e.topics[topic] = struct{}{}
	return true
}

// Unsubscribe removes topic from the observer's set. Unknown observers are ignored.
func (r *Registry) Unsubscribe(observerID, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[observerID]
	if !ok {
		return false
	}
	delete(e.topics, topic)
	return true
}

// SnapshotFor returns the observers that should receive topic: those
// subscribed to it and those with no subscriptions at all. The slice is
// owned by the caller and unaffected by later registry changes.
func (r *Registry) SnapshotFor(topic string) []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]Target, 0, len(r.entries))
	for id, e := range r.entries {
		if len(e.topics) > 0 {
			if _, ok := e.topics[topic]; !ok {
				continue
			}
		}
		targets = append(targets, Target{ObserverID: id, Sink: e.sink, generation: e.generation})
	}
	return targets
}

// Count returns the number of registered external observers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.observersLocked()
}

// InternalCount returns the number of observers added with RegisterInternal.
func (r *Registry) InternalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) - r.observersLocked()
}

// observersLocked counts external observers. Callers hold r.mu.
func (r *Registry) observersLocked() int {
	n := 0
	for _, e := range r.entries {
		if !e.internal {
			n++
		}
	}
	return n
}

// Topics returns the observer's subscriptions, sorted. The second result is
// false for unknown observers.
func (r *Registry) Topics(observerID string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[observerID]
	if !ok {
		return nil, false
	}
	topics := make([]string, 0, len(e.topics))
	for t := range e.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics, true
}

// Close deregisters every observer, closing their sinks.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		closeSink(e.sink)
	}
	r.metrics.SetObservers(0)
}

// closeSink closes s, absorbing panics from misbehaving sinks.
func closeSink(s Sink) {
	defer func() {
		recover() //nolint:errcheck // Sink failures must not escape the registry
	}()
	_ = s.Close() //nolint:errcheck // Nothing useful to do with a close error
}
