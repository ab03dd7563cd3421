package zone

import (
	"time"

	"github.com/nerrad567/perimeter-core/internal/geo"
)

// Default sound pressure limits in dB SPL.
const (
	DefaultDaySPL   = 95.0
	DefaultNightSPL = 85.0
)

// Kind is the alert class of a zone.
type Kind string

const (
	KindRed        Kind = "red"
	KindYellow     Kind = "yellow"
	KindRestricted Kind = "restricted"
)

// AllKinds returns all valid zone kinds.
func AllKinds() []Kind {
	return []Kind{KindRed, KindYellow, KindRestricted}
}

// Zone is a guarded area of the site.
type Zone struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Kind          Kind        `json:"kind"`
	Polygon       []geo.Point `json:"polygon"`
	DaySPLLimit   float64     `json:"day_spl_limit"`
	NightSPLLimit float64     `json:"night_spl_limit"`
	AutoResponse  bool        `json:"auto_response"`
	Active        bool        `json:"active"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Contains reports whether p lies inside the zone polygon.
func (z *Zone) Contains(p geo.Point) bool {
	return geo.PolygonContains(z.Polygon, p)
}

// SPLLimit returns the deterrent sound pressure ceiling in force at t.
func (z *Zone) SPLLimit(t time.Time, night NightWindow) float64 {
	if night.Contains(t) {
		return z.NightSPLLimit
	}
	return z.DaySPLLimit
}

// Clone returns a copy with its own polygon slice.
func (z *Zone) Clone() *Zone {
	if z == nil {
		return nil
	}
	cpy := *z
	cpy.Polygon = append([]geo.Point(nil), z.Polygon...)
	return &cpy
}

// NightWindow is the daily quiet period, as offsets from local midnight.
// A window whose Start is after End wraps past midnight (22:00-06:00).
type NightWindow struct {
	Start    time.Duration
	End      time.Duration
	Location *time.Location
}

// DefaultNightWindow is 22:00-06:00 UTC.
func DefaultNightWindow() NightWindow {
	return NightWindow{Start: 22 * time.Hour, End: 6 * time.Hour, Location: time.UTC}
}

// Contains reports whether t falls inside the window. An empty window
// (Start == End) never contains anything.
func (w NightWindow) Contains(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second

	switch {
	case w.Start == w.End:
		return false
	case w.Start < w.End:
		return offset >= w.Start && offset < w.End
	default:
		return offset >= w.Start || offset < w.End
	}
}
