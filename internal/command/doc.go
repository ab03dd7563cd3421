// Package command executes actions on perimeter hardware.
//
// The Facade resolves a device, picks the adapter for its kind once, lets the
// adapter validate and normalise the requested parameters, and then hands the
// command to a Transport. With no transport wired the command is simulated and
// reported as executed, which is how development sites run without hardware.
//
// # Adapters
//
//	deterrent_emitter   deterrent, alarm    duration 1-60s, pattern, spl <= 120
//	ptz_camera          camera_pan          pan/tilt/zoom or lat/lng slew target
//	thermal_camera      alarm               operation calibrate | snapshot
//	acoustic_detector   alarm               operation self_test
//	relay_bank          relay, light        channel 1-6, state on | off | pulse
//
// # Transport
//
// Commands are published as JSON to perimeter/command/{kind}/{device_id} at
// QoS 1. A command counts as executed once the broker accepts the publish.
//
// Execute never blocks past its timeout; a command that does not complete in
// time is reported as failed with reason "timeout".
package command
