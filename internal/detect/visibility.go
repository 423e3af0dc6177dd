package detect

import (
	"time"

	"github.com/driftwatch/backend/internal/session"
)

// VisibilityState is the raw state of the hidden-tab detector, surfaced in
// diagnostics. Distracted implies HiddenSince is set and the tab has been
// hidden continuously since then.
type VisibilityState struct {
	Hidden      bool       `json:"hidden"`
	HiddenSince *time.Time `json:"hiddenSince,omitempty"`
	Distracted  bool       `json:"distracted"`
}

// visibilityDetector tracks hidden/visible transitions. Two thresholds are
// deliberately different: the arm delay (when a live alert fires) and the
// minimum recorded duration (when an episode is worth logging). Short tab
// peeks trigger neither; once the alert armed, even a borderline duration
// is logged on return.
type visibilityDetector struct {
	state VisibilityState
}

// hide handles visible→hidden. Returns true when the arm timer should be
// scheduled (repeated hidden signals while already hidden are no-ops).
func (d *visibilityDetector) hide(now time.Time) bool {
	if d.state.Hidden {
		return false
	}
	d.state.Hidden = true
	ts := now
	d.state.HiddenSince = &ts
	return true
}

// armFired handles the arm timer. Returns true when the detector newly
// became distracted; false when the tab came back before the timer landed.
func (d *visibilityDetector) armFired(now time.Time) bool {
	if !d.state.Hidden || d.state.HiddenSince == nil || d.state.Distracted {
		return false
	}
	d.state.Distracted = true
	return true
}

// show handles hidden→visible. Emits a completed tab_switch event when the
// total hidden time reached minRecord, then always resets to the initial
// state regardless of duration.
func (d *visibilityDetector) show(now time.Time, minRecord time.Duration) *session.DistractionEvent {
	var ev *session.DistractionEvent
	if d.state.HiddenSince != nil {
		duration := now.Sub(*d.state.HiddenSince)
		if duration >= minRecord {
			e := session.NewDurationEvent(session.TabSwitch, *d.state.HiddenSince, duration)
			ev = &e
		}
	}
	d.reset()
	return ev
}

func (d *visibilityDetector) reset() {
	d.state = VisibilityState{}
}
