package zone

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength = 100
	maxVertices   = 1000
	minVertices   = 3
	maxSPLLimitDB = 120.0
	minSPLLimitDB = 0.0
)

// Normalize validates z and fills defaults: a generated ID and the default
// SPL limits when zero. Active and AutoResponse are taken as given.
func Normalize(z *Zone) error {
	if z == nil {
		return ErrInvalidZone
	}
	if z.ID == "" {
		z.ID = uuid.NewString()
	}

	z.Name = strings.TrimSpace(z.Name)
	if z.Name == "" || len(z.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidZone, maxNameLength)
	}

	switch z.Kind {
	case KindRed, KindYellow, KindRestricted:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidZone, z.Kind)
	}

	if len(z.Polygon) < minVertices || len(z.Polygon) > maxVertices {
		return fmt.Errorf("%w: polygon needs %d-%d vertices, got %d", ErrInvalidZone, minVertices, maxVertices, len(z.Polygon))
	}
	for i, p := range z.Polygon {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: vertex %d: %w", ErrInvalidZone, i, err)
		}
	}

	if z.DaySPLLimit == 0 {
		z.DaySPLLimit = DefaultDaySPL
	}
	if z.NightSPLLimit == 0 {
		z.NightSPLLimit = DefaultNightSPL
	}
	for _, limit := range []float64{z.DaySPLLimit, z.NightSPLLimit} {
		if limit < minSPLLimitDB || limit > maxSPLLimitDB {
			return fmt.Errorf("%w: spl limit %v outside %v-%v", ErrInvalidZone, limit, minSPLLimitDB, maxSPLLimitDB)
		}
	}
	return nil
}
