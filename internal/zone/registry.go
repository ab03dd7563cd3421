package zone

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/perimeter-core/internal/geo"
)

// Registry caches zones in front of a Repository.
//
// All public methods are thread-safe. Returned zones are clones.
type Registry struct {
	repo  Repository
	mu    sync.RWMutex
	zones map[string]*Zone
}

// NewRegistry creates a zone registry. Call RefreshCache before use.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, zones: make(map[string]*Zone)}
}

// RefreshCache reloads every zone from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	zones, err := r.repo.List(ctx, false)
	if err != nil {
		return fmt.Errorf("loading zones: %w", err)
	}

	fresh := make(map[string]*Zone, len(zones))
	for i := range zones {
		fresh[zones[i].ID] = zones[i].Clone()
	}

	r.mu.Lock()
	r.zones = fresh
	r.mu.Unlock()
	return nil
}

// CreateZone validates, persists and caches a zone.
func (r *Registry) CreateZone(ctx context.Context, z *Zone) error {
	if err := Normalize(z); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, z); err != nil {
		return err
	}

	r.mu.Lock()
	r.zones[z.ID] = z.Clone()
	r.mu.Unlock()
	return nil
}

// GetZone returns a zone by ID.
func (r *Registry) GetZone(ctx context.Context, id string) (*Zone, error) {
	r.mu.RLock()
	z, ok := r.zones[id]
	r.mu.RUnlock()
	if ok {
		return z.Clone(), nil
	}

	z, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.zones[id] = z.Clone()
	r.mu.Unlock()
	return z, nil
}

// ListZones returns cached zones ordered by name.
func (r *Registry) ListZones(activeOnly bool) []Zone {
	r.mu.RLock()
	zones := make([]Zone, 0, len(r.zones))
	for _, z := range r.zones {
		if activeOnly && !z.Active {
			continue
		}
		zones = append(zones, *z.Clone())
	}
	r.mu.RUnlock()

	sortZones(zones)
	return zones
}

// Locate returns the first active zone (by name, then ID) containing p.
func (r *Registry) Locate(p geo.Point) (*Zone, bool) {
	for _, z := range r.ListZones(true) {
		if z.Contains(p) {
			return &z, true
		}
	}
	return nil, false
}

func sortZones(zones []Zone) {
	sort.Slice(zones, func(i, j int) bool {
		if zones[i].Name != zones[j].Name {
			return zones[i].Name < zones[j].Name
		}
		return zones[i].ID < zones[j].ID
	})
}
