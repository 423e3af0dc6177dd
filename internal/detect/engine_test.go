package detect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/driftwatch/backend/internal/config"
	"github.com/driftwatch/backend/internal/session"
	"github.com/driftwatch/backend/internal/vision"
)

// captureRecorder is an in-memory sink standing in for the file recorder.
type captureRecorder struct {
	mu     sync.Mutex
	events []session.DistractionEvent
}

func (r *captureRecorder) Record(ev session.DistractionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *captureRecorder) all() []session.DistractionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.DistractionEvent(nil), r.events...)
}

type fakeCapturer struct{}

func (fakeCapturer) Capture(ctx context.Context) (vision.Snapshot, error) {
	return vision.Snapshot{Screen: []byte{1}, MIME: "image/png"}, nil
}

type fakeClassifier struct {
	mu      sync.Mutex
	res     vision.Analysis
	err     error
	release chan struct{} // when set, Analyze blocks until closed
}

func (f *fakeClassifier) Analyze(ctx context.Context, snap vision.Snapshot, goal string) (vision.Analysis, error) {
	f.mu.Lock()
	release := f.release
	res, err := f.res, f.err
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return res, err
}

// testConfig shrinks the visibility timings so timer-driven paths run in
// test time. The idle threshold stays large; idle tests override it.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Detect.VisibilityArm = 30 * time.Millisecond
	cfg.Detect.VisibilityMinRecord = 20 * time.Millisecond
	cfg.Detect.IdleThreshold = time.Hour
	return cfg
}

func newTestEngine(cfg *config.Config) (*Engine, *captureRecorder) {
	rec := &captureRecorder{}
	return NewEngine(cfg, session.NewContext(), rec), rec
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEngineIgnoresSignalsWithoutVoyage(t *testing.T) {
	e, rec := newTestEngine(testConfig())

	e.PageHidden()
	e.Navigated("https://youtube.com")
	e.InputActivity()
	time.Sleep(60 * time.Millisecond)

	snap := e.Snapshot()
	if snap.Monitoring {
		t.Error("monitoring should be off without a voyage")
	}
	if snap.IsDistracted {
		t.Error("signals without a voyage must not distract")
	}
	if got := rec.all(); len(got) != 0 {
		t.Errorf("recorded %d events without a voyage", len(got))
	}
}

func TestEngineTabSwitchLifecycle(t *testing.T) {
	e, rec := newTestEngine(testConfig())
	v := e.StartVoyage("thesis writing", nil)

	e.PageHidden()
	waitFor(t, "visibility alert never armed", func() bool {
		return e.Snapshot().IsDistracted
	})
	if snap := e.Snapshot(); snap.DistractionType != session.TabSwitch {
		t.Fatalf("type = %v, want tab_switch", snap.DistractionType)
	}

	e.PageVisible()
	snap := e.Snapshot()
	if snap.IsDistracted {
		t.Error("return to the tab should clear the verdict")
	}

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != session.TabSwitch {
		t.Errorf("event type = %v, want tab_switch", ev.Type)
	}
	if ev.DurationMs == nil || *ev.DurationMs < 30 {
		t.Errorf("event duration = %v, want at least the arm delay", ev.DurationMs)
	}
	if ev.VoyageID != v.ID {
		t.Errorf("event voyage = %q, want %q", ev.VoyageID, v.ID)
	}
}

func TestEngineQuickPeekNeverSurfaces(t *testing.T) {
	cfg := testConfig()
	cfg.Detect.VisibilityArm = 80 * time.Millisecond
	e, rec := newTestEngine(cfg)
	e.StartVoyage("thesis writing", nil)

	e.PageHidden()
	time.Sleep(10 * time.Millisecond)
	e.PageVisible()
	time.Sleep(120 * time.Millisecond) // past where the arm timer would have fired

	if e.Snapshot().IsDistracted {
		t.Error("quick peek must never surface a distraction")
	}
	if got := rec.all(); len(got) != 0 {
		t.Errorf("quick peek recorded %d events, want 0", len(got))
	}
}

func TestEngineNavigationPriority(t *testing.T) {
	e, rec := newTestEngine(testConfig())
	e.StartVoyage("thesis writing", nil)

	e.Navigated("https://youtube.com/watch?v=x")
	snap := e.Snapshot()
	if !snap.IsDistracted || snap.DistractionType != session.Entertainment {
		t.Fatalf("after navigation: %+v, want entertainment", snap)
	}
	if events := rec.all(); len(events) != 1 || events[0].Type != session.Entertainment {
		t.Fatalf("expected one immediate entertainment event, got %+v", events)
	}

	// Hide the tab on top of the URL distraction: tab_switch takes over.
	e.PageHidden()
	waitFor(t, "tab_switch never took priority", func() bool {
		return e.Snapshot().DistractionType == session.TabSwitch
	})

	// Back to the (still distracting) page: URL type surfaces again.
	time.Sleep(25 * time.Millisecond)
	e.PageVisible()
	snap = e.Snapshot()
	if !snap.IsDistracted || snap.DistractionType != session.Entertainment {
		t.Errorf("after return: %+v, want entertainment again", snap)
	}

	// Navigating somewhere task-relevant clears silently.
	e.Navigated("https://github.com/driftwatch/backend")
	if e.Snapshot().IsDistracted {
		t.Error("whitelisted navigation should clear the verdict")
	}
}

func TestEngineIdleFiresAndIsSuppressed(t *testing.T) {
	cfg := testConfig()
	cfg.Detect.IdleThreshold = 60 * time.Millisecond
	e, rec := newTestEngine(cfg)
	e.StartVoyage("thesis writing", nil)

	waitFor(t, "idle never fired", func() bool {
		s := e.Snapshot()
		return s.IsDistracted && s.DistractionType == session.Idle
	})
	events := rec.all()
	if len(events) != 1 || events[0].Type != session.Idle {
		t.Fatalf("expected one idle event, got %+v", events)
	}
	if events[0].DurationMs != nil {
		t.Error("idle event should carry no duration")
	}
}

func TestEngineIdleSuppressedByTabSwitch(t *testing.T) {
	cfg := testConfig()
	cfg.Detect.VisibilityArm = 10 * time.Millisecond
	cfg.Detect.IdleThreshold = 60 * time.Millisecond
	e, rec := newTestEngine(cfg)
	e.StartVoyage("thesis writing", nil)

	e.PageHidden()
	waitFor(t, "visibility alert never armed", func() bool {
		return e.Snapshot().DistractionType == session.TabSwitch
	})

	// Let several idle thresholds elapse with the tab-switch distraction
	// active: idle must keep deferring.
	time.Sleep(200 * time.Millisecond)
	for _, ev := range rec.all() {
		if ev.Type == session.Idle {
			t.Fatal("idle fired while tab_switch was active")
		}
	}
	if e.Snapshot().DistractionType != session.TabSwitch {
		t.Error("tab_switch should still dominate")
	}
}

func TestEngineRespondReturnToCourse(t *testing.T) {
	e, rec := newTestEngine(testConfig())
	e.StartVoyage("thesis writing", nil)

	e.Navigated("https://twitter.com/home")
	waitFor(t, "url distraction never surfaced", func() bool {
		return e.Snapshot().IsDistracted
	})
	time.Sleep(20 * time.Millisecond)

	e.Respond(session.ReturnToCourse)

	snap := e.Snapshot()
	if snap.IsDistracted {
		t.Error("return_to_course must clear every detector")
	}
	if !snap.Monitoring {
		t.Error("monitoring should continue after return_to_course")
	}

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("recorded %d events, want transition + finalized episode", len(events))
	}
	final := events[1]
	if final.Type != session.Social {
		t.Errorf("finalized type = %v, want social", final.Type)
	}
	if final.DurationMs == nil || *final.DurationMs < 20 {
		t.Errorf("finalized duration = %v, want the episode span", final.DurationMs)
	}
}

func TestEngineRespondExploringSuspends(t *testing.T) {
	e, rec := newTestEngine(testConfig())
	e.StartVoyage("thesis writing", nil)

	e.Navigated("https://twitter.com/home")
	e.Respond(session.Exploring)

	snap := e.Snapshot()
	if !snap.Exploring {
		t.Fatal("expected exploring mode")
	}
	if snap.Monitoring {
		t.Error("exploring must suspend monitoring")
	}

	// Signals while exploring are ignored entirely.
	before := len(rec.all())
	e.PageHidden()
	e.Navigated("https://youtube.com")
	time.Sleep(60 * time.Millisecond)
	if got := len(rec.all()); got != before {
		t.Errorf("recorded %d new events while exploring", got-before)
	}

	// Resuming resets the detectors so pre-exploration state can't fire.
	e.SetExploring(false)
	snap = e.Snapshot()
	if !snap.Monitoring {
		t.Error("resume should restore monitoring")
	}
	if snap.IsDistracted {
		t.Error("resume should start from a clean slate")
	}
}

func TestEngineAlertDedup(t *testing.T) {
	e, _ := newTestEngine(testConfig())

	var mu sync.Mutex
	var alerts []session.DistractionType
	e.SetAlertFunc(func(typ session.DistractionType, _ time.Time) {
		mu.Lock()
		alerts = append(alerts, typ)
		mu.Unlock()
	})

	e.StartVoyage("thesis writing", nil)
	e.Navigated("https://youtube.com")    // alert
	e.Navigated("https://github.com")     // clear
	e.Navigated("https://twitter.com")    // new episode, within cooldown
	e.Navigated("https://youtube.com")    // type change, still within cooldown

	mu.Lock()
	defer mu.Unlock()
	if len(alerts) != 1 {
		t.Fatalf("fired %d alerts, want 1 (cooldown should suppress the rest)", len(alerts))
	}
	if alerts[0] != session.Entertainment {
		t.Errorf("alert type = %v, want entertainment", alerts[0])
	}
}

func TestEngineEndVoyageTearsDown(t *testing.T) {
	e, rec := newTestEngine(testConfig())
	e.StartVoyage("thesis writing", nil)
	e.Navigated("https://youtube.com")
	e.PageHidden()

	if _, ok := e.EndVoyage(); !ok {
		t.Fatal("expected an active voyage to end")
	}

	snap := e.Snapshot()
	if snap.Monitoring || snap.IsDistracted {
		t.Errorf("after end: %+v, want idle clean state", snap)
	}

	// The arm timer was cancelled with the voyage; nothing fires later.
	before := len(rec.all())
	time.Sleep(60 * time.Millisecond)
	if got := len(rec.all()); got != before {
		t.Error("a timer survived voyage teardown")
	}
}

func TestEngineCombinedAnalysis(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	cls := &fakeClassifier{res: vision.Analysis{
		ContentRelevant: false,
		DistractionType: "social",
		ConfidenceLevel: 0.9,
	}}
	e.SetVision(fakeCapturer{}, cls)
	e.StartVoyage("thesis writing", nil)

	e.analyze()
	waitFor(t, "analysis result never landed", func() bool {
		s := e.Snapshot()
		return s.IsDistracted && s.DistractionType == session.Social
	})

	// A failing cycle preserves the verdict.
	cls.mu.Lock()
	cls.err = errors.New("network down")
	cls.mu.Unlock()
	e.analyze()
	waitFor(t, "error cycle never finished", func() bool {
		return e.Snapshot().Diagnostics.Combined.LastError != ""
	})
	if !e.Snapshot().IsDistracted {
		t.Error("analysis failure must not clear the active distraction")
	}
}

func TestEngineStaleAnalysisDiscarded(t *testing.T) {
	e, _ := newTestEngine(testConfig())
	release := make(chan struct{})
	cls := &fakeClassifier{
		res:     vision.Analysis{ContentRelevant: false},
		release: release,
	}
	e.SetVision(fakeCapturer{}, cls)
	e.StartVoyage("thesis writing", nil)

	e.analyze()
	waitFor(t, "analysis never started", func() bool {
		return e.Snapshot().Diagnostics.Combined.Checking
	})

	// The voyage ends while the call is outstanding; its result must not
	// resurrect any state when it finally lands.
	e.EndVoyage()
	close(release)

	waitFor(t, "stale result never cleared the in-flight flag", func() bool {
		return !e.Snapshot().Diagnostics.Combined.Checking
	})
	if snap := e.Snapshot(); snap.Diagnostics.Combined.Distracted {
		t.Errorf("stale analysis result applied after teardown: %+v", snap.Diagnostics.Combined)
	}
}
