// Package geo holds the coordinate types shared by events, devices and zones.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPoint is returned when a coordinate is out of range.
var ErrInvalidPoint = errors.New("geo: invalid point")

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UnmarshalJSON accepts "lon" as an alias for "lng". Sensors in the field
// use both spellings.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
		Lon *float64 `json:"lon"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Lat == nil {
		return fmt.Errorf("%w: lat is required", ErrInvalidPoint)
	}
	lng := raw.Lng
	if lng == nil {
		lng = raw.Lon
	}
	if lng == nil {
		return fmt.Errorf("%w: lng is required", ErrInvalidPoint)
	}
	p.Lat, p.Lng = *raw.Lat, *lng
	return nil
}

// Validate checks the coordinate ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: lat %v out of range", ErrInvalidPoint, p.Lat)
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: lng %v out of range", ErrInvalidPoint, p.Lng)
	}
	return nil
}

// PolygonContains reports whether p lies inside the polygon using ray casting.
// The polygon is implicitly closed; fewer than three vertices never contain a point.
func PolygonContains(polygon []Point, p Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := polygon[i], polygon[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) &&
			p.Lng < (b.Lng-a.Lng)*(p.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lng {
			inside = !inside
		}
	}
	return inside
}
