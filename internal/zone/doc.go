// Package zone models the guarded perimeter areas.
//
// A zone is a polygon with an alert class (red, yellow, restricted), a pair
// of sound pressure limits for deterrents, and a switch that decides whether
// automated responses may fire inside it. The Registry caches active zones
// so the ingest gateway can resolve an event's zone from its coordinates.
package zone
