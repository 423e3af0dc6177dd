package detect

import (
	"time"

	"github.com/driftwatch/backend/internal/session"
)

// ActivityState is the raw state of the input-idle detector.
type ActivityState struct {
	LastActivity time.Time `json:"lastActivity"`
	Distracted   bool      `json:"distracted"`
}

// activityMonitor tracks the last input timestamp. Idle is the catch-all,
// lowest-priority signal: the engine never lets it fire while the tab-switch
// or combined detector is already distracted, avoiding double counting.
type activityMonitor struct {
	state ActivityState
}

func (m *activityMonitor) touch(now time.Time) {
	m.state.LastActivity = now
}

// setIdle marks the monitor distracted and returns the idle event,
// backdated to when input actually stopped. The caller is responsible for
// checking the idle threshold and the suppression rule first.
func (m *activityMonitor) setIdle(now time.Time, threshold time.Duration) session.DistractionEvent {
	m.state.Distracted = true
	return session.NewEvent(session.Idle, now.Add(-threshold))
}

// idleElapsed reports whether the idle threshold has passed with no input.
func (m *activityMonitor) idleElapsed(now time.Time, threshold time.Duration) bool {
	return !m.state.LastActivity.IsZero() && now.Sub(m.state.LastActivity) >= threshold
}

func (m *activityMonitor) reset(now time.Time) {
	m.state = ActivityState{LastActivity: now}
}
