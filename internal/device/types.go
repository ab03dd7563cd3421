package device

import (
	"time"

	"github.com/nerrad567/perimeter-core/internal/geo"
)

// Device is a perimeter actuator or detector.
// This matches the devices table in migrations/20260301_120000_initial_schema.up.sql.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// Placement
	ZoneID   string     `json:"zone_id,omitempty"`
	Location *geo.Point `json:"location,omitempty"`

	Status   Status     `json:"status"`
	Config   Config     `json:"config"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// Map and pointer fields are cloned so the registry cache stays isolated.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Config = deepCopyMap(d.Config)
	if d.Location != nil {
		loc := *d.Location
		cpy.Location = &loc
	}
	if d.LastSeen != nil {
		seen := *d.LastSeen
		cpy.LastSeen = &seen
	}
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// Config holds kind-specific settings as a JSON map.
//
// Examples:
//
//	deterrent_emitter: {"max_spl": 120, "ip": "10.0.4.21"}
//	ptz_camera:        {"home_pan": 0, "home_tilt": -10}
//	relay_bank:        {"channels": 6}
type Config map[string]any

// Kind classifies a device.
type Kind string

const (
	KindThermalCamera    Kind = "thermal_camera"
	KindAcousticDetector Kind = "acoustic_detector"
	KindDeterrentEmitter Kind = "deterrent_emitter"
	KindRelayBank        Kind = "relay_bank"
	KindPTZCamera        Kind = "ptz_camera"
)

// AllKinds returns all canonical device kinds.
func AllKinds() []Kind {
	return []Kind{
		KindThermalCamera,
		KindAcousticDetector,
		KindDeterrentEmitter,
		KindRelayBank,
		KindPTZCamera,
	}
}

// kindAliases maps vendor product names to canonical kinds.
var kindAliases = map[string]Kind{
	"thermal":   KindThermalCamera,
	"boomerang": KindAcousticDetector,
	"lrad":      KindDeterrentEmitter,
	"adam":      KindRelayBank,
	"camera":    KindPTZCamera,
	"ptz":       KindPTZCamera,
}

// Status is the reported connectivity of a device.
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusDegraded Status = "degraded"
)

// AllStatuses returns all valid device statuses.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusDegraded}
}
