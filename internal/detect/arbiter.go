package detect

import (
	"github.com/driftwatch/backend/internal/session"
)

// Verdict is the arbitrated aggregate the UI observes.
type Verdict struct {
	IsDistracted bool                    `json:"isDistracted"`
	Type         session.DistractionType `json:"distractionType"`
}

// detectorStates is a consistent snapshot of all four detectors, taken under
// the engine lock so the arbiter can never observe a half-updated detector.
type detectorStates struct {
	Visibility VisibilityState
	Activity   ActivityState
	URL        URLState
	Combined   CombinedState
}

// priorityRules is the fixed arbitration order, evaluated top-down; the
// first matching rule wins. Idle sits last: it only surfaces when no other
// detector is active.
var priorityRules = []struct {
	name  string
	match func(detectorStates) bool
	typ   func(detectorStates) session.DistractionType
}{
	{
		name:  "tab_switch",
		match: func(d detectorStates) bool { return d.Visibility.Distracted },
		typ:   func(detectorStates) session.DistractionType { return session.TabSwitch },
	},
	{
		name:  "url",
		match: func(d detectorStates) bool { return d.URL.Distracted },
		typ:   func(d detectorStates) session.DistractionType { return d.URL.Type },
	},
	{
		name:  "combined",
		match: func(d detectorStates) bool { return d.Combined.Distracted },
		typ:   func(d detectorStates) session.DistractionType { return d.Combined.Type },
	},
	{
		name:  "idle",
		match: func(d detectorStates) bool { return d.Activity.Distracted },
		typ:   func(detectorStates) session.DistractionType { return session.Idle },
	},
}

// arbitrate resolves simultaneously-true detector signals into one verdict.
// Pure function of the detector states.
func arbitrate(d detectorStates) Verdict {
	for _, rule := range priorityRules {
		if rule.match(d) {
			return Verdict{IsDistracted: true, Type: rule.typ(d)}
		}
	}
	return Verdict{Type: session.None}
}
