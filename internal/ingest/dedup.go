package ingest

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/perimeter-core/internal/event"
)

// Dedup window defaults.
const (
	DefaultDedupSize = 10_000
	DefaultDedupTTL  = 10 * time.Minute
)

// window remembers recently ingested event identities.
//
// Concurrent ingests of one identity join a single flight: exactly one runs
// the pipeline and the rest receive its event as a duplicate.
type window struct {
	mu     sync.Mutex
	seen   *expirable.LRU[string, *event.Event]
	flight singleflight.Group
}

func newWindow(size int, ttl time.Duration) *window {
	if size <= 0 {
		size = DefaultDedupSize
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &window{seen: expirable.NewLRU[string, *event.Event](size, nil, ttl)}
}

// lookup returns the event remembered for id.
func (w *window) lookup(id string) (*event.Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ev, ok := w.seen.Get(id)
	if !ok {
		return nil, false
	}
	return ev.Clone(), true
}

// remember records ev unless its identity is already present.
func (w *window) remember(ev *event.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.seen.Contains(ev.ID) {
		w.seen.Add(ev.ID, ev.Clone())
	}
}

// claim runs process once per identity. It returns ErrDuplicateIdentity with
// the prior event when id is already in the window or another caller is
// processing it.
func (w *window) claim(id string, process func() (*event.Event, error)) (*event.Event, error) {
	if prior, ok := w.lookup(id); ok {
		return prior, ErrDuplicateIdentity
	}

	var leader bool
	v, err, _ := w.flight.Do(id, func() (any, error) {
		if prior, ok := w.lookup(id); ok {
			return prior, ErrDuplicateIdentity
		}
		leader = true
		ev, err := process()
		if ev == nil {
			return nil, err
		}
		// A store conflict resolves to the stored event, which is
		// remembered like a fresh one.
		w.remember(ev)
		return ev, err
	})
	if v == nil {
		return nil, err
	}

	ev := v.(*event.Event).Clone()
	if err == nil && !leader {
		err = ErrDuplicateIdentity
	}
	return ev, err
}

// len reports the number of remembered identities.
func (w *window) len() int {
	return w.seen.Len()
}
