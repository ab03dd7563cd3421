package command

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/geo"
)

// Adapter validates commands for one device kind.
type Adapter interface {
	// Supports reports whether the device kind can perform action.
	Supports(action event.Action) bool

	// Normalize checks params and returns the parameters the device will
	// apply, with defaults filled in. params is never modified.
	Normalize(action event.Action, params map[string]any) (map[string]any, error)
}

// DefaultAdapters returns one adapter per known device kind.
func DefaultAdapters() map[device.Kind]Adapter {
	return map[device.Kind]Adapter{
		device.KindDeterrentEmitter: AcousticDeterrent{},
		device.KindPTZCamera:        PTZCamera{},
		device.KindThermalCamera:    ThermalSensor{},
		device.KindAcousticDetector: AcousticDetector{},
		device.KindRelayBank:        RelayBank{},
	}
}

// Deterrent limits.
const (
	DefaultDuration = 10
	MinDuration     = 1
	MaxDuration     = 60
	DefaultPattern  = "deterrent"
	DefaultSPL      = 95
	MaxSPL          = 120
)

// AcousticDeterrent drives long-range acoustic emitters.
type AcousticDeterrent struct{}

func (AcousticDeterrent) Supports(action event.Action) bool {
	return action == event.ActionDeterrent || action == event.ActionAlarm
}

func (AcousticDeterrent) Normalize(action event.Action, params map[string]any) (map[string]any, error) {
	out := copyParams(params)

	duration, ok, err := number(params, "duration")
	if err != nil {
		return nil, err
	}
	if !ok {
		duration = DefaultDuration
	}
	if duration < MinDuration || duration > MaxDuration {
		return nil, fmt.Errorf("%w: duration %v outside %d-%d seconds", ErrInvalidParameter, duration, MinDuration, MaxDuration)
	}
	out["duration"] = duration

	pattern, ok, err := text(params, "pattern")
	if err != nil {
		return nil, err
	}
	if !ok {
		pattern = DefaultPattern
		if action == event.ActionAlarm {
			pattern = "alarm"
		}
	}
	out["pattern"] = pattern

	spl, ok, err := number(params, "spl")
	if err != nil {
		return nil, err
	}
	if !ok {
		spl = DefaultSPL
	}
	if spl <= 0 || spl > MaxSPL {
		return nil, fmt.Errorf("%w: spl %v outside 1-%d dB", ErrInvalidParameter, spl, MaxSPL)
	}
	out["spl"] = spl

	return out, nil
}

// PTZ limits.
const (
	MaxPan  = 180
	MaxTilt = 90
	MinZoom = 1
	MaxZoom = 30
)

// PTZCamera slews pan-tilt-zoom cameras, either to absolute angles or onto
// a geographic target.
type PTZCamera struct{}

func (PTZCamera) Supports(action event.Action) bool {
	return action == event.ActionCameraPan
}

func (PTZCamera) Normalize(_ event.Action, params map[string]any) (map[string]any, error) {
	out := copyParams(params)

	lat, hasLat, err := number(params, "lat")
	if err != nil {
		return nil, err
	}
	lng, hasLng, err := number(params, "lng")
	if err != nil {
		return nil, err
	}
	if hasLat != hasLng {
		return nil, fmt.Errorf("%w: lat and lng must be given together", ErrInvalidParameter)
	}
	if hasLat {
		if err := (geo.Point{Lat: lat, Lng: lng}).Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
		}
		out["lat"], out["lng"] = lat, lng
		return out, nil
	}

	pan, _, err := number(params, "pan")
	if err != nil {
		return nil, err
	}
	tilt, _, err := number(params, "tilt")
	if err != nil {
		return nil, err
	}
	zoom, ok, err := number(params, "zoom")
	if err != nil {
		return nil, err
	}
	if !ok {
		zoom = MinZoom
	}

	switch {
	case pan < -MaxPan || pan > MaxPan:
		return nil, fmt.Errorf("%w: pan %v outside -%d..%d", ErrInvalidParameter, pan, MaxPan, MaxPan)
	case tilt < -MaxTilt || tilt > MaxTilt:
		return nil, fmt.Errorf("%w: tilt %v outside -%d..%d", ErrInvalidParameter, tilt, MaxTilt, MaxTilt)
	case zoom < MinZoom || zoom > MaxZoom:
		return nil, fmt.Errorf("%w: zoom %v outside %d..%d", ErrInvalidParameter, zoom, MinZoom, MaxZoom)
	}
	out["pan"], out["tilt"], out["zoom"] = pan, tilt, zoom
	return out, nil
}

// ThermalSensor accepts maintenance operations on thermal cameras.
// An alarm defaults to capturing a snapshot.
type ThermalSensor struct{}

func (ThermalSensor) Supports(action event.Action) bool {
	return action == event.ActionAlarm
}

func (ThermalSensor) Normalize(_ event.Action, params map[string]any) (map[string]any, error) {
	return operation(params, "snapshot", "snapshot", "calibrate")
}

// AcousticDetector accepts maintenance operations on gunshot detectors.
type AcousticDetector struct{}

func (AcousticDetector) Supports(action event.Action) bool {
	return action == event.ActionAlarm
}

func (AcousticDetector) Normalize(_ event.Action, params map[string]any) (map[string]any, error) {
	return operation(params, "self_test", "self_test")
}

// Relay limits.
const (
	MinChannel = 1
	MaxChannel = 6
)

var relayStates = map[string]bool{"on": true, "off": true, "pulse": true}

// RelayBank switches digital output channels (lights, sirens, gates).
type RelayBank struct{}

func (RelayBank) Supports(action event.Action) bool {
	return action == event.ActionRelay || action == event.ActionLight
}

func (RelayBank) Normalize(_ event.Action, params map[string]any) (map[string]any, error) {
	out := copyParams(params)

	channel, ok, err := number(params, "channel")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: channel is required", ErrInvalidParameter)
	}
	if channel != float64(int(channel)) || channel < MinChannel || channel > MaxChannel {
		return nil, fmt.Errorf("%w: channel %v outside %d-%d", ErrInvalidParameter, channel, MinChannel, MaxChannel)
	}
	out["channel"] = int(channel)

	state, ok, err := text(params, "state")
	if err != nil {
		return nil, err
	}
	if !ok {
		state = "on"
	}
	if !relayStates[state] {
		return nil, fmt.Errorf("%w: state %q must be on, off or pulse", ErrInvalidParameter, state)
	}
	out["state"] = state
	return out, nil
}

func operation(params map[string]any, def string, allowed ...string) (map[string]any, error) {
	out := copyParams(params)
	op, ok, err := text(params, "operation")
	if err != nil {
		return nil, err
	}
	if !ok {
		op = def
	}
	for _, a := range allowed {
		if op == a {
			out["operation"] = op
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidParameter, op)
}

func copyParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+3)
	for k, v := range params {
		out[k] = v
	}
	return out
}

// number reads a numeric parameter. Values decoded from JSON arrive as
// float64 or json.Number; values built in code are often ints.
func number(params map[string]any, key string) (float64, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s: %w", ErrInvalidParameter, key, err)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidParameter, key)
	}
}

func text(params map[string]any, key string) (string, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("%w: %s must be a string", ErrInvalidParameter, key)
	}
	if s == "" {
		return "", false, nil
	}
	return s, true, nil
}
