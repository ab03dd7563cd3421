package ingest

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/perimeter-core/internal/event"
)

func TestWindow_ClaimOnce(t *testing.T) {
	w := newWindow(10, time.Minute)
	calls := 0
	process := func() (*event.Event, error) {
		calls++
		return &event.Event{ID: "evt-1", Type: event.TypeMotion}, nil
	}

	first, err := w.claim("evt-1", process)
	if err != nil || first.ID != "evt-1" {
		t.Fatalf("first claim = %+v, %v", first, err)
	}
	second, err := w.claim("evt-1", process)
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("second claim error = %v, want ErrDuplicateIdentity", err)
	}
	if second.ID != "evt-1" || calls != 1 {
		t.Errorf("second = %+v, calls = %d", second, calls)
	}
	if second == first {
		t.Error("claims share one event pointer")
	}
}

func TestWindow_FailureNotRemembered(t *testing.T) {
	w := newWindow(10, time.Minute)
	boom := errors.New("boom")

	if _, err := w.claim("evt-1", func() (*event.Event, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("claim error = %v, want boom", err)
	}
	if w.len() != 0 {
		t.Fatalf("len = %d after failure", w.len())
	}
	if _, err := w.claim("evt-1", func() (*event.Event, error) { return &event.Event{ID: "evt-1"}, nil }); err != nil {
		t.Errorf("retry error = %v", err)
	}
}

func TestWindow_StoredConflictRemembered(t *testing.T) {
	w := newWindow(10, time.Minute)
	stored := &event.Event{ID: "evt-1", Type: event.TypeGunshot}

	ev, err := w.claim("evt-1", func() (*event.Event, error) { return stored, ErrDuplicateIdentity })
	if !errors.Is(err, ErrDuplicateIdentity) || ev.Type != event.TypeGunshot {
		t.Fatalf("claim = %+v, %v", ev, err)
	}
	if _, ok := w.lookup("evt-1"); !ok {
		t.Error("stored event not remembered")
	}
}

func TestWindow_ConcurrentClaims(t *testing.T) {
	w := newWindow(10, time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	var dups atomic.Int32
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.claim("evt-1", func() (*event.Event, error) {
				calls.Add(1)
				<-release
				return &event.Event{ID: "evt-1"}, nil
			})
			if errors.Is(err, ErrDuplicateIdentity) {
				dups.Add(1)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("process ran %d times, want 1", calls.Load())
	}
	if dups.Load() != 15 {
		t.Errorf("%d duplicates, want 15", dups.Load())
	}
}

func TestWindow_Expiry(t *testing.T) {
	w := newWindow(10, 30*time.Millisecond)
	if _, err := w.claim("evt-1", func() (*event.Event, error) { return &event.Event{ID: "evt-1"}, nil }); err != nil {
		t.Fatalf("claim error = %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	if _, ok := w.lookup("evt-1"); ok {
		t.Error("identity still remembered after TTL")
	}
}

func TestWindow_Defaults(t *testing.T) {
	w := newWindow(0, 0)
	if w.seen == nil {
		t.Fatal("window not initialised")
	}
}
