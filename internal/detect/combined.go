package detect

import (
	"time"

	"github.com/driftwatch/backend/internal/session"
	"github.com/driftwatch/backend/internal/vision"
)

// CombinedState is the raw state of the multimodal analyzer. Checking is
// true only while an external analysis call is in flight; the engine never
// allows a second call to start while one is outstanding.
type CombinedState struct {
	Distracted bool                    `json:"distracted"`
	Since      *time.Time              `json:"since,omitempty"`
	Confidence float64                 `json:"confidence"`
	Type       session.DistractionType `json:"type"`
	Checking   bool                    `json:"checking"`
	LastError  string                  `json:"lastError,omitempty"`
	LastResult *vision.Analysis        `json:"lastResult,omitempty"`
}

type combinedAnalyzer struct {
	state CombinedState
}

// beginCheck marks an analysis in flight. Returns false when one is already
// outstanding; the caller must then skip the tick (no queued retry).
func (a *combinedAnalyzer) beginCheck() bool {
	if a.state.Checking {
		return false
	}
	a.state.Checking = true
	return true
}

// applyError ends the in-flight call on failure. The distracted value is
// deliberately left untouched: a transient capture or classification failure
// must not flip state in either direction.
func (a *combinedAnalyzer) applyError(err error) {
	a.state.Checking = false
	a.state.LastError = err.Error()
}

// applyResult interprets a classifier judgment. Returns true when the
// analyzer newly became distracted. The all-clear transition resets the
// state without emitting anything; episode conclusion is the response
// handler's job.
func (a *combinedAnalyzer) applyResult(res vision.Analysis, now time.Time) bool {
	a.state.Checking = false
	a.state.LastError = ""
	a.state.LastResult = &res

	cameraCause := res.CameraAvailable && (!res.PersonPresent || !res.AppearsFocused)
	isDistraction := !res.ContentRelevant || cameraCause

	if !isDistraction {
		a.state.Distracted = false
		a.state.Since = nil
		a.state.Type = session.None
		a.state.Confidence = res.ConfidenceLevel
		return false
	}

	a.state.Confidence = res.ConfidenceLevel
	if a.state.Distracted {
		return false
	}

	ts := now
	a.state.Distracted = true
	a.state.Since = &ts
	if cameraCause {
		a.state.Type = session.CameraDistraction
	} else if res.DistractionType != "" {
		a.state.Type = session.TypeFromName(res.DistractionType)
	} else {
		a.state.Type = session.IrrelevantContent
	}
	return true
}

// reset clears the distraction fields. Checking is preserved so an in-flight
// call keeps blocking new ticks until it lands; the engine discards its
// result via the analysis generation counter.
func (a *combinedAnalyzer) reset() {
	checking := a.state.Checking
	a.state = CombinedState{Type: session.None, Checking: checking}
}
