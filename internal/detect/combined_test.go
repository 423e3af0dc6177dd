package detect

import (
	"errors"
	"testing"
	"time"

	"github.com/driftwatch/backend/internal/session"
	"github.com/driftwatch/backend/internal/vision"
)

func TestCombinedApplyResult(t *testing.T) {
	tests := []struct {
		name       string
		res        vision.Analysis
		distracted bool
		typ        session.DistractionType
	}{
		{
			name:       "all clear",
			res:        vision.Analysis{ContentRelevant: true, CameraAvailable: true, PersonPresent: true, AppearsFocused: true},
			distracted: false,
			typ:        session.None,
		},
		{
			name:       "irrelevant content",
			res:        vision.Analysis{ContentRelevant: false, DistractionType: "entertainment"},
			distracted: true,
			typ:        session.Entertainment,
		},
		{
			name:       "irrelevant content no label",
			res:        vision.Analysis{ContentRelevant: false},
			distracted: true,
			typ:        session.IrrelevantContent,
		},
		{
			name:       "person absent",
			res:        vision.Analysis{ContentRelevant: true, CameraAvailable: true, PersonPresent: false, AppearsFocused: true},
			distracted: true,
			typ:        session.CameraDistraction,
		},
		{
			name:       "person unfocused",
			res:        vision.Analysis{ContentRelevant: true, CameraAvailable: true, PersonPresent: true, AppearsFocused: false},
			distracted: true,
			typ:        session.CameraDistraction,
		},
		{
			name: "camera cause outranks content label",
			res: vision.Analysis{
				ContentRelevant: false, CameraAvailable: true,
				PersonPresent: false, DistractionType: "social",
			},
			distracted: true,
			typ:        session.CameraDistraction,
		},
		{
			name:       "no camera means screen only",
			res:        vision.Analysis{ContentRelevant: true, CameraAvailable: false, PersonPresent: false, AppearsFocused: false},
			distracted: false,
			typ:        session.None,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a combinedAnalyzer
			a.reset()
			a.beginCheck()
			started := a.applyResult(tt.res, time.Now())
			if a.state.Distracted != tt.distracted {
				t.Errorf("distracted = %v, want %v", a.state.Distracted, tt.distracted)
			}
			if a.state.Type != tt.typ {
				t.Errorf("type = %v, want %v", a.state.Type, tt.typ)
			}
			if started != tt.distracted {
				t.Errorf("started = %v, want %v", started, tt.distracted)
			}
			if a.state.Checking {
				t.Error("applyResult must clear the in-flight flag")
			}
		})
	}
}

func TestCombinedRepeatResultKeepsAnchor(t *testing.T) {
	var a combinedAnalyzer
	a.reset()
	t0 := time.Now()

	a.beginCheck()
	if !a.applyResult(vision.Analysis{ContentRelevant: false}, t0) {
		t.Fatal("first distracting result should start an episode")
	}
	since := *a.state.Since

	a.beginCheck()
	if a.applyResult(vision.Analysis{ContentRelevant: false}, t0.Add(time.Minute)) {
		t.Error("ongoing distraction must not restart the episode")
	}
	if !a.state.Since.Equal(since) {
		t.Error("episode anchor moved on repeat result")
	}

	a.beginCheck()
	a.applyResult(vision.Analysis{ContentRelevant: true}, t0.Add(2*time.Minute))
	if a.state.Distracted || a.state.Since != nil {
		t.Errorf("all-clear should reset: %+v", a.state)
	}
}

func TestCombinedErrorPreservesState(t *testing.T) {
	var a combinedAnalyzer
	a.reset()
	t0 := time.Now()

	a.beginCheck()
	a.applyResult(vision.Analysis{ContentRelevant: false}, t0)

	a.beginCheck()
	a.applyError(errors.New("capture failed"))
	if !a.state.Distracted {
		t.Error("analysis failure must not clear an active distraction")
	}
	if a.state.Checking {
		t.Error("error must clear the in-flight flag")
	}
	if a.state.LastError == "" {
		t.Error("expected the error to be surfaced in diagnostics")
	}
}

func TestCombinedSingleFlight(t *testing.T) {
	var a combinedAnalyzer
	a.reset()
	if !a.beginCheck() {
		t.Fatal("first beginCheck should succeed")
	}
	if a.beginCheck() {
		t.Error("second beginCheck with one in flight should be refused")
	}

	// reset keeps the in-flight flag so the outstanding call still blocks
	// new ticks until it lands.
	a.reset()
	if !a.state.Checking {
		t.Error("reset must preserve the in-flight flag")
	}
	if a.beginCheck() {
		t.Error("reset must not unblock a new check while one is outstanding")
	}
}
