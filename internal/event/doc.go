// Package event defines perimeter events and the responses taken to them,
// with their SQLite persistence.
//
// An Event is a single detection (gunshot, intrusion, thermal signature...)
// reported by a sensor, the vendor bus, or an operator. A Response is one
// action taken or advised in reaction to an Event.
//
// Event status only moves forward: active, then acknowledged, then resolved.
// An active event may be resolved directly.
//
// Responses start pending and become executed or failed exactly once.
package event
