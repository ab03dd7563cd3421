package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for the hot lookups
// made by the ingest gateway and the command facade.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	return d, nil
}

// ListDevices retrieves all devices sorted by name.
// The returned devices are deep copies.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	if len(r.cache) == 0 {
		r.cacheMu.RUnlock()
		return r.repo.List(ctx)
	}
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices, nil
}

// ListByKind returns cached devices of the given kind.
func (r *Registry) ListByKind(kind Kind) []Device {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var devices []Device
	for _, d := range r.cache {
		if d.Kind == kind {
			devices = append(devices, *d.DeepCopy())
		}
	}
	return devices
}

// CreateDevice validates, normalises and persists a new device.
// On success device carries its final ID, kind, status and timestamps.
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	if err := Normalize(device); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "id", device.ID, "kind", device.Kind)
	return nil
}

// SetStatus records a status report and refreshes last_seen.
// It returns the updated device.
func (r *Registry) SetStatus(ctx context.Context, id string, status Status) (*Device, error) {
	if err := ValidateStatus(status); err != nil {
		return nil, err
	}

	now := r.now()
	if err := r.repo.UpdateStatus(ctx, id, status, now); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	cached, ok := r.cache[id]
	if ok {
		updated := cached.DeepCopy()
		updated.Status = status
		updated.LastSeen = &now
		updated.UpdatedAt = now
		r.cache[id] = updated
		r.cacheMu.Unlock()
		r.logger.Debug("device status updated", "id", id, "status", status)
		return updated.DeepCopy(), nil
	}
	r.cacheMu.Unlock()

	// Uncached devices are re-read so the returned copy is complete.
	return r.GetDevice(ctx, id)
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
