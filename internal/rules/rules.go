// Package rules decides which automated responses an event warrants.
//
// Evaluation is a pure function of the event, the reporting device and the
// containing zone: no I/O, no clock reads. Rules are grouped by category
// and tried in order; the first matching rule in each category fires and
// categories are independent of one another.
package rules

import (
	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/zone"
)

// Category groups rules; at most one intent per category is produced.
type Category string

const (
	CategoryDeterrent Category = "deterrent"
	CategoryAlert     Category = "alert"
	CategoryCamera    Category = "camera"
)

// Baseline thresholds and parameters.
const (
	HighConfidence     = 0.8
	AlertConfidence    = 0.5
	DefaultSPL         = 95.0
	deterrentDuration  = 10
	deterrentPattern   = "alert"
	advisoryZoneManual = "zone auto_response disabled"
	advisoryZoneOff    = "zone inactive"
)

// Intent is a response the engine recommends.
type Intent struct {
	Rule           string         `json:"rule"`
	Category       Category       `json:"category"`
	Action         event.Action   `json:"action"`
	TargetDeviceID string         `json:"device_id,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	// Advisory intents are surfaced to operators and never executed.
	Advisory bool   `json:"advisory"`
	Reason   string `json:"reason,omitempty"`
}

// Config holds the targets and limits the baseline rules use.
type Config struct {
	DefaultDeterrent string
	DefaultCamera    string
	DefaultSPL       float64
	Night            zone.NightWindow
}

// Rule is one entry in the ordered rule list.
type Rule struct {
	Name     string
	Category Category
	Match    func(ev *event.Event, dev *device.Device) bool
	Build    func(cfg Config, ev *event.Event) Intent
}

// Engine evaluates events against an ordered rule list.
type Engine struct {
	cfg   Config
	rules []Rule
}

// NewEngine creates an engine with the baseline rules.
func NewEngine(cfg Config) *Engine {
	return NewEngineWithRules(cfg, BaselineRules())
}

// NewEngineWithRules creates an engine with a custom rule list.
func NewEngineWithRules(cfg Config, rules []Rule) *Engine {
	if cfg.DefaultSPL <= 0 {
		cfg.DefaultSPL = DefaultSPL
	}
	return &Engine{cfg: cfg, rules: append([]Rule(nil), rules...)}
}

// Evaluate returns the intents for ev, in rule order. dev and zn may be nil.
//
// When a zone is known and either disallows automated response or is
// inactive, every intent is downgraded to advisory. Deterrent intents in a
// known zone carry an spl no louder than the zone allows at the event's time.
func (e *Engine) Evaluate(ev *event.Event, dev *device.Device, zn *zone.Zone) []Intent {
	if ev == nil {
		return nil
	}

	fired := make(map[Category]bool, 3)
	var intents []Intent
	for _, r := range e.rules {
		if fired[r.Category] || !r.Match(ev, dev) {
			continue
		}
		fired[r.Category] = true

		intent := r.Build(e.cfg, ev)
		intent.Rule = r.Name
		intent.Category = r.Category
		intents = append(intents, intent)
	}

	if zn == nil {
		return intents
	}

	for i := range intents {
		if intents[i].Action == event.ActionDeterrent {
			intents[i].Parameters["spl"] = min(e.cfg.DefaultSPL, zn.SPLLimit(ev.Timestamp, e.cfg.Night))
		}
		switch {
		case !zn.Active:
			downgrade(&intents[i], advisoryZoneOff)
		case !zn.AutoResponse:
			downgrade(&intents[i], advisoryZoneManual)
		}
	}
	return intents
}

func downgrade(in *Intent, reason string) {
	if in.Advisory {
		return
	}
	in.Advisory = true
	in.Reason = reason
}

// BaselineRules returns the standard rule list.
func BaselineRules() []Rule {
	return []Rule{
		{
			Name:     "gunshot_deterrent",
			Category: CategoryDeterrent,
			Match: func(ev *event.Event, _ *device.Device) bool {
				return ev.Type == event.TypeGunshot && ev.Confidence > HighConfidence
			},
			Build: func(cfg Config, _ *event.Event) Intent {
				return Intent{
					Action:         event.ActionDeterrent,
					TargetDeviceID: cfg.DefaultDeterrent,
					Parameters: map[string]any{
						"duration": deterrentDuration,
						"pattern":  deterrentPattern,
					},
				}
			},
		},
		{
			Name:     "breach_alert",
			Category: CategoryAlert,
			Match: func(ev *event.Event, _ *device.Device) bool {
				return isBreach(ev.Type) && ev.Confidence >= AlertConfidence
			},
			Build: func(_ Config, ev *event.Event) Intent {
				return Intent{
					Action:     event.ActionAlarm,
					Parameters: map[string]any{"event_type": ev.Type, "confidence": ev.Confidence},
					Advisory:   true,
					Reason:     "operator alert",
				}
			},
		},
		{
			Name:     "slew_to_cue",
			Category: CategoryCamera,
			Match: func(ev *event.Event, _ *device.Device) bool {
				return ev.Location != nil && ev.Confidence > HighConfidence &&
					(isBreach(ev.Type) || ev.Type == event.TypeThermal)
			},
			Build: func(cfg Config, ev *event.Event) Intent {
				return Intent{
					Action:         event.ActionCameraPan,
					TargetDeviceID: cfg.DefaultCamera,
					Parameters:     map[string]any{"lat": ev.Location.Lat, "lng": ev.Location.Lng},
				}
			},
		},
	}
}

func isBreach(eventType string) bool {
	switch eventType {
	case event.TypeGunshot, event.TypeIntrusion, event.TypeFenceCut:
		return true
	default:
		return false
	}
}
