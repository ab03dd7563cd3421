package event

import (
	"fmt"
	"time"

	"github.com/nerrad567/perimeter-core/internal/geo"
)

// Well-known event types. The set is open; producers may report others.
const (
	TypeGunshot      = "gunshot"
	TypeThermal      = "thermal"
	TypeIntrusion    = "intrusion"
	TypeFenceCut     = "fence_cut"
	TypeMotion       = "motion"
	TypeLineCrossing = "line_crossing"
	TypeAcoustic     = "acoustic"
)

// Event sources.
const (
	SourceSensor    = "sensor"
	SourceVendor    = "vendor"
	SourceOperator  = "operator"
	SourceSimulator = "simulator"
)

// Status is the operator-facing lifecycle of an event.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// rank orders statuses for the forward-only rule.
var rank = map[Status]int{
	StatusActive:       0,
	StatusAcknowledged: 1,
	StatusResolved:     2,
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	if _, ok := rank[Status(s)]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return Status(s), nil
}

// Event is a single detection.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	Confidence float64        `json:"confidence"`
	Location   *geo.Point     `json:"location,omitempty"`
	DeviceID   string         `json:"device_id,omitempty"`
	ZoneID     string         `json:"zone_id,omitempty"`
	Source     string         `json:"source,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     Status         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Transition moves the event to status to. Setting the current status is a
// no-op reported as changed=false; moving backwards returns ErrInvalidTransition.
func (e *Event) Transition(to Status, at time.Time) (changed bool, err error) {
	toRank, ok := rank[to]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if to == e.Status {
		return false, nil
	}
	if toRank < rank[e.Status] {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, to)
	}
	e.Status = to
	e.UpdatedAt = at
	return true, nil
}

// Clone returns a copy that shares no maps or pointers with e.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cpy := *e
	if e.Location != nil {
		loc := *e.Location
		cpy.Location = &loc
	}
	if e.Metadata != nil {
		cpy.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cpy.Metadata[k] = v
		}
	}
	return &cpy
}

// Action is what a response does.
type Action string

const (
	ActionDeterrent Action = "deterrent"
	ActionCameraPan Action = "camera_pan"
	ActionLight     Action = "light"
	ActionAlarm     Action = "alarm"
	ActionRelay     Action = "relay"
)

// ParseAction validates an action string.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionDeterrent, ActionCameraPan, ActionLight, ActionAlarm, ActionRelay:
		return a, true
	default:
		return "", false
	}
}

// ResponseStatus is the execution state of a response.
type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "pending"
	ResponseExecuted ResponseStatus = "executed"
	ResponseFailed   ResponseStatus = "failed"
)

// Response is an action taken, or advised, for an event.
type Response struct {
	ID             string         `json:"id"`
	EventID        string         `json:"event_id"`
	Action         Action         `json:"action"`
	TargetDeviceID string         `json:"device_id"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Status         ResponseStatus `json:"status"`
	Reason         string         `json:"reason,omitempty"`
	Advisory       bool           `json:"advisory,omitempty"`
	OperatorID     string         `json:"operator_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// Final reports whether the response has reached executed or failed.
func (r *Response) Final() bool {
	return r.Status == ResponseExecuted || r.Status == ResponseFailed
}

// Complete records the command outcome. Parameters, when non-nil, replace the
// requested ones with the values the device actually applied.
func (r *Response) Complete(success bool, params map[string]any, reason string, at time.Time) error {
	if r.Final() {
		return fmt.Errorf("%w: %s is %s", ErrResponseFinal, r.ID, r.Status)
	}
	if success {
		r.Status = ResponseExecuted
		r.Reason = ""
	} else {
		r.Status = ResponseFailed
		r.Reason = reason
	}
	if params != nil {
		r.Parameters = params
	}
	r.CompletedAt = &at
	return nil
}

// Filter selects events for QueryEvents.
type Filter struct {
	Type   string
	Status Status
	Since  time.Time
	Limit  int
	Offset int
}
