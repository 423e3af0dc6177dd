// Package detect implements the distraction detection and arbitration
// engine: four independent detectors (tab visibility, input idleness,
// navigation target, periodic multimodal analysis) combined into one
// arbitrated verdict, an alert deduplication layer, and response handling.
//
// All detector mutations and arbiter reads happen under one engine mutex,
// the Go rendition of the original single-threaded event loop: the arbiter
// can never observe a half-updated detector.
package detect

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/driftwatch/backend/internal/config"
	"github.com/driftwatch/backend/internal/persist"
	"github.com/driftwatch/backend/internal/session"
	"github.com/driftwatch/backend/internal/vision"
	"github.com/driftwatch/backend/internal/voice"
)

// Snapshot is the read-only view exposed to the UI layer, recomputed on
// every detector transition from the same locked read as the verdict.
type Snapshot struct {
	IsDistracted    bool                    `json:"isDistracted"`
	DistractionType session.DistractionType `json:"distractionType"`
	Monitoring      bool                    `json:"monitoring"`
	Exploring       bool                    `json:"exploring"`
	Diagnostics     Diagnostics             `json:"diagnostics"`
}

// Diagnostics carries the per-detector raw states for observability.
type Diagnostics struct {
	Visibility VisibilityState `json:"visibility"`
	Activity   ActivityState   `json:"activity"`
	URL        URLState        `json:"url"`
	Combined   CombinedState   `json:"combined"`
	Process    ProcessStats    `json:"process"`
}

type Engine struct {
	mu  sync.Mutex
	cfg *config.Config

	voyage   *session.Context
	recorder persist.Recorder

	visibility visibilityDetector
	activity   activityMonitor
	urls       urlClassifier
	combined   combinedAnalyzer

	verdict Verdict
	timers  *timerSet
	dedup   *Deduper
	proc    *procSampler

	// analysisGen invalidates in-flight analysis results across resets so a
	// stale completion can't resurrect cleared state.
	analysisGen uint64

	capturer   vision.Capturer
	classifier vision.Classifier
	vox        voice.Voice

	notify  func(Snapshot)
	onAlert func(session.DistractionType, time.Time)
	onEvent func(session.DistractionEvent)

	baseCtx context.Context

	voiceMu     sync.Mutex
	voiceCancel context.CancelFunc

	now func() time.Time
}

func NewEngine(cfg *config.Config, voyage *session.Context, recorder persist.Recorder) *Engine {
	e := &Engine{
		cfg:      cfg,
		voyage:   voyage,
		recorder: recorder,
		timers:   newTimerSet(),
		dedup:    NewDeduper(cfg.Detect.AlertBucket, cfg.Detect.AlertCooldown, cfg.Detect.AlertRetention),
		proc:     newProcSampler(),
		vox:      voice.Null{},
		baseCtx:  context.Background(),
		now:      time.Now,
	}
	e.urls.reset()
	e.combined.reset()
	return e
}

// SetVision wires the capture and classification collaborators. Either may
// be nil, which disables the combined analyzer entirely.
func (e *Engine) SetVision(capturer vision.Capturer, classifier vision.Classifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.capturer = capturer
	e.classifier = classifier
}

func (e *Engine) SetVoice(v voice.Voice) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vox = v
}

// SetNotify registers the snapshot observer (called after every detector
// update, outside the engine lock).
func (e *Engine) SetNotify(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = fn
}

// SetAlertFunc registers the observer for deduplicated alert decisions.
func (e *Engine) SetAlertFunc(fn func(session.DistractionType, time.Time)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAlert = fn
}

// SetEventFunc registers an observer for recorded events (in addition to the
// recorder sink).
func (e *Engine) SetEventFunc(fn func(session.DistractionEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEvent = fn
}

// SetConfig swaps the config. Thresholds and URL rules apply from the next
// signal or timer; the URL poll and analysis tick intervals are read at
// Start and need a restart to change.
func (e *Engine) SetConfig(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.dedup.SetWindows(cfg.Detect.AlertBucket, cfg.Detect.AlertCooldown, cfg.Detect.AlertRetention)
}

// Start runs the periodic ticks (URL re-classification and combined
// analysis) until ctx is done, then tears down every timer and detector.
// Blocks; run it on its own goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.baseCtx = ctx
	urlInterval := e.cfg.Detect.URLPollInterval
	analyzeInterval := e.cfg.Detect.AnalyzeInterval
	e.mu.Unlock()

	urlTicker := time.NewTicker(urlInterval)
	defer urlTicker.Stop()
	analyzeTicker := time.NewTicker(analyzeInterval)
	defer analyzeTicker.Stop()

	log.Printf("Detection engine started (url poll %s, analysis %s)", urlInterval, analyzeInterval)

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			log.Println("Detection engine stopped")
			return
		case <-urlTicker.C:
			e.pollURL()
		case <-analyzeTicker.C:
			e.analyze()
		}
	}
}

// monitoring reports whether detectors should process signals at all. It is
// checked at the top of every handler and tick: the exploring flag is the
// authoritative suspension switch.
func (e *Engine) monitoring() bool {
	return e.voyage.IsActive() && !e.voyage.IsExploring()
}

// StartVoyage begins a new voyage and arms monitoring from a clean slate.
func (e *Engine) StartVoyage(goal string, relatedApps []string) session.Voyage {
	v := e.voyage.Begin(goal, relatedApps)
	e.mu.Lock()
	now := e.now()
	e.resetMonitoringLocked(now)
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	log.Printf("Voyage started: %q (%d related apps)", goal, len(relatedApps))
	e.dispatch(post)
	return v
}

// EndVoyage tears down monitoring in one operation: every pending timer is
// cancelled and every detector reset under a single lock acquisition.
func (e *Engine) EndVoyage() (session.Voyage, bool) {
	e.stopVoice()
	e.mu.Lock()
	now := e.now()
	e.teardownLocked(now)
	e.dedup.Reset()
	v, ok := e.voyage.End()
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	if ok {
		log.Printf("Voyage ended: %q", v.Goal)
	}
	e.dispatch(post)
	return v, ok
}

// SetExploring flips the suspension switch. Resuming from exploring resets
// the detectors so stale pre-exploration state can't fire immediately.
func (e *Engine) SetExploring(exploring bool) {
	if !e.voyage.SetExploring(exploring) {
		return
	}
	e.mu.Lock()
	now := e.now()
	if exploring {
		e.timers.cancelAll()
	} else {
		e.resetMonitoringLocked(now)
	}
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	log.Printf("Exploring mode: %v", exploring)
	e.dispatch(post)
}

// PageHidden handles the visible→hidden signal: record when, and arm the
// alert timer.
func (e *Engine) PageHidden() {
	if !e.monitoring() {
		return
	}
	e.mu.Lock()
	now := e.now()
	if e.visibility.hide(now) {
		e.timers.schedule(timerVisibilityArm, e.cfg.Detect.VisibilityArm, e.visibilityArmFired)
	}
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	e.dispatch(post)
}

func (e *Engine) visibilityArmFired() {
	if !e.monitoring() {
		return
	}
	e.mu.Lock()
	now := e.now()
	if !e.visibility.armFired(now) {
		e.mu.Unlock()
		return
	}
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	e.dispatch(post)
}

// PageVisible handles hidden→visible: cancel the pending arm timer, record
// a completed tab-switch episode when it lasted long enough, reset, and
// re-classify the current URL.
func (e *Engine) PageVisible() {
	if !e.monitoring() {
		return
	}
	e.mu.Lock()
	now := e.now()
	e.timers.cancel(timerVisibilityArm)
	if ev := e.visibility.show(now, e.cfg.Detect.VisibilityMinRecord); ev != nil {
		e.recordLocked(*ev)
	}
	e.classifyCurrentLocked(now)
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	e.dispatch(post)
}

// InputActivity handles any pointer/key/scroll/click signal.
func (e *Engine) InputActivity() {
	if !e.monitoring() {
		return
	}
	e.mu.Lock()
	now := e.now()
	e.activity.touch(now)
	e.timers.schedule(timerIdle, e.cfg.Detect.IdleThreshold, e.idleFired)
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	e.dispatch(post)
}

func (e *Engine) idleFired() {
	if !e.monitoring() {
		return
	}
	e.mu.Lock()
	now := e.now()
	threshold := e.cfg.Detect.IdleThreshold

	// Idle is the fallback signal: it never fires over an active tab-switch
	// or combined-analysis distraction. Re-arm and check again later.
	if e.visibility.state.Distracted || e.combined.state.Distracted {
		e.timers.schedule(timerIdle, threshold, e.idleFired)
		e.mu.Unlock()
		return
	}
	if e.activity.state.Distracted || !e.activity.idleElapsed(now, threshold) {
		e.mu.Unlock()
		return
	}

	ev := e.activity.setIdle(now, threshold)
	e.recordLocked(ev)
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	e.dispatch(post)
}

// Navigated handles a navigation-target change.
func (e *Engine) Navigated(url string) {
	if !e.monitoring() {
		return
	}
	e.mu.Lock()
	now := e.now()
	cls := classifyURL(url, e.cfg.Rules, e.voyage.RelatedApps())
	if ev := e.urls.apply(url, cls, now); ev != nil {
		e.recordLocked(*ev)
	}
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	e.dispatch(post)
}

// pollURL re-classifies the last known URL. This catches client-side route
// changes that bypass navigation events, and applies reloaded rule lists
// between navigations.
func (e *Engine) pollURL() {
	if !e.monitoring() {
		return
	}
	e.mu.Lock()
	url := e.urls.state.CurrentURL
	if url == "" {
		e.mu.Unlock()
		return
	}
	now := e.now()
	cls := classifyURL(url, e.cfg.Rules, e.voyage.RelatedApps())
	if ev := e.urls.apply(url, cls, now); ev != nil {
		e.recordLocked(*ev)
	}
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	e.dispatch(post)
}

func (e *Engine) classifyCurrentLocked(now time.Time) {
	url := e.urls.state.CurrentURL
	if url == "" {
		return
	}
	cls := classifyURL(url, e.cfg.Rules, e.voyage.RelatedApps())
	if ev := e.urls.apply(url, cls, now); ev != nil {
		e.recordLocked(*ev)
	}
}

// analyze runs one combined-analysis cycle: capture, classify, interpret.
// A tick landing while a call is outstanding is a no-op, not a queued retry.
func (e *Engine) analyze() {
	if !e.monitoring() {
		return
	}
	e.mu.Lock()
	if e.capturer == nil || e.classifier == nil {
		e.mu.Unlock()
		return
	}
	if !e.combined.beginCheck() {
		e.mu.Unlock()
		return
	}
	gen := e.analysisGen
	goal := e.voyage.Goal()
	capturer, classifier := e.capturer, e.classifier
	timeout := e.cfg.Detect.AnalyzeTimeout
	ctx := e.baseCtx
	e.mu.Unlock()

	go func() {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		snap, err := capturer.Capture(actx)
		if err != nil {
			e.finishAnalysis(gen, vision.Analysis{}, err)
			return
		}
		res, err := classifier.Analyze(actx, snap, goal)
		e.finishAnalysis(gen, res, err)
	}()
}

// finishAnalysis lands an analysis result (or failure) back under the
// engine lock. Results from before a reset are discarded except for
// clearing the in-flight flag.
func (e *Engine) finishAnalysis(gen uint64, res vision.Analysis, err error) {
	e.mu.Lock()
	now := e.now()
	if gen != e.analysisGen {
		e.combined.state.Checking = false
		e.mu.Unlock()
		return
	}
	if err != nil {
		// Fail toward the status quo: the previous distracted value stands
		// and the next tick retries normally.
		e.combined.applyError(err)
		log.Printf("Combined analysis error (state preserved): %v", err)
		post := e.recomputeLocked(now)
		e.mu.Unlock()
		e.dispatch(post)
		return
	}
	e.combined.applyResult(res, now)
	log.Printf("Combined analysis: relevant=%v camera=%v confidence=%.2f",
		res.ContentRelevant, res.CameraAvailable, res.ConfidenceLevel)
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	e.dispatch(post)
}

// Respond resolves the current distraction episode with the user's choice.
func (e *Engine) Respond(choice session.ResponseChoice) {
	if !e.voyage.IsActive() {
		return
	}
	e.stopVoice()

	e.mu.Lock()
	now := e.now()
	if start, typ, ok := e.activeEpisodeLocked(); ok {
		e.recordLocked(session.NewDurationEvent(typ, start, now.Sub(start)))
	}
	switch choice {
	case session.ReturnToCourse:
		e.voyage.SetExploring(false)
		e.resetMonitoringLocked(now)
		e.dedup.Reset()
	case session.Exploring:
		e.voyage.SetExploring(true)
		e.timers.cancelAll()
	}
	post := e.recomputeLocked(now)
	e.mu.Unlock()
	log.Printf("User response: %s", choice)
	e.dispatch(post)
}

// activeEpisodeLocked finds the earliest start time among the currently
// distracted detectors with a start anchor (tab hidden-since, URL since,
// combined since) plus the arbitrated dominant type. Idle has no anchor of
// its own; its event was already emitted when the idle timer fired.
func (e *Engine) activeEpisodeLocked() (time.Time, session.DistractionType, bool) {
	var starts []time.Time
	if e.visibility.state.Distracted && e.visibility.state.HiddenSince != nil {
		starts = append(starts, *e.visibility.state.HiddenSince)
	}
	if e.urls.state.Distracted && e.urls.state.Since != nil {
		starts = append(starts, *e.urls.state.Since)
	}
	if e.combined.state.Distracted && e.combined.state.Since != nil {
		starts = append(starts, *e.combined.state.Since)
	}
	if len(starts) == 0 {
		return time.Time{}, session.None, false
	}
	earliest := starts[0]
	for _, s := range starts[1:] {
		if s.Before(earliest) {
			earliest = s
		}
	}
	return earliest, arbitrate(e.statesLocked()).Type, true
}

// Snapshot returns the current read-only aggregate view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) statesLocked() detectorStates {
	return detectorStates{
		Visibility: e.visibility.state,
		Activity:   e.activity.state,
		URL:        e.urls.state,
		Combined:   e.combined.state,
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		IsDistracted:    e.verdict.IsDistracted,
		DistractionType: e.verdict.Type,
		Monitoring:      e.monitoring(),
		Exploring:       e.voyage.IsExploring(),
		Diagnostics: Diagnostics{
			Visibility: e.visibility.state,
			Activity:   e.activity.state,
			URL:        e.urls.state,
			Combined:   e.combined.state,
			Process:    e.proc.sample(),
		},
	}
}

// postActions collects the side effects decided under the lock, fired after
// release.
type postActions struct {
	snap      Snapshot
	alert     bool
	alertType session.DistractionType
	alertAt   time.Time
}

// recomputeLocked re-arbitrates after a detector update and decides whether
// a new alert should fire. Caller must hold e.mu.
func (e *Engine) recomputeLocked(now time.Time) postActions {
	v := arbitrate(e.statesLocked())
	if v.IsDistracted && v.Type == session.None {
		// The priority table is incomplete; surface loudly during testing.
		log.Printf("ERROR: arbiter produced distracted verdict with no type: %+v", e.statesLocked())
	}

	newEpisode := v.IsDistracted && (!e.verdict.IsDistracted || v.Type != e.verdict.Type)
	e.verdict = v

	post := postActions{snap: e.snapshotLocked()}
	if newEpisode && e.dedup.ShouldAlert(v.Type, now) {
		post.alert = true
		post.alertType = v.Type
		post.alertAt = now
	}
	return post
}

// dispatch fires the queued side effects outside the engine lock.
func (e *Engine) dispatch(post postActions) {
	if e.notify != nil {
		e.notify(post.snap)
	}
	if !post.alert {
		return
	}
	log.Printf("Alert: %s", post.alertType)
	if e.onAlert != nil {
		e.onAlert(post.alertType, post.alertAt)
	}
	e.fireVoiceAlert()
}

// fireVoiceAlert speaks the alert phrase and listens for a spoken
// resolution. Both are best-effort black boxes: failures are logged, never
// surfaced.
func (e *Engine) fireVoiceAlert() {
	e.mu.Lock()
	enabled := e.cfg.Voice.Enabled
	phrase := e.cfg.Voice.AlertPhrase
	listenTimeout := e.cfg.Voice.ListenTimeout
	vox := e.vox
	base := e.baseCtx
	e.mu.Unlock()
	if !enabled {
		return
	}

	ctx, cancel := context.WithCancel(base)
	e.voiceMu.Lock()
	if e.voiceCancel != nil {
		e.voiceCancel()
	}
	e.voiceCancel = cancel
	e.voiceMu.Unlock()

	go func() {
		defer cancel()
		if err := vox.Speak(ctx, phrase); err != nil {
			log.Printf("Voice alert error: %v", err)
			return
		}
		tr, err := vox.Listen(ctx, listenTimeout)
		if err != nil {
			return
		}
		if choice, ok := voice.ClassifyIntent(tr.Text); ok {
			e.Respond(choice)
		}
	}()
}

// stopVoice cancels any in-flight speak/listen.
func (e *Engine) stopVoice() {
	e.voiceMu.Lock()
	if e.voiceCancel != nil {
		e.voiceCancel()
		e.voiceCancel = nil
	}
	e.voiceMu.Unlock()
}

func (e *Engine) recordLocked(ev session.DistractionEvent) {
	if v, ok := e.voyage.Current(); ok {
		ev.VoyageID = v.ID
	}
	if e.recorder != nil {
		e.recorder.Record(ev)
	}
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

// resetMonitoringLocked resets every detector to its initial state and
// re-arms the idle timer for a fresh monitoring window.
func (e *Engine) resetMonitoringLocked(now time.Time) {
	e.teardownLocked(now)
	e.timers.schedule(timerIdle, e.cfg.Detect.IdleThreshold, e.idleFired)
}

// teardownLocked is the single-operation teardown: cancel the whole timer
// set and reset every detector atomically relative to any arbiter read.
func (e *Engine) teardownLocked(now time.Time) {
	e.timers.cancelAll()
	e.visibility.reset()
	e.activity.reset(now)
	e.urls.reset()
	e.combined.reset()
	e.analysisGen++
}

func (e *Engine) shutdown() {
	e.stopVoice()
	e.mu.Lock()
	e.teardownLocked(e.now())
	e.verdict = Verdict{Type: session.None}
	e.mu.Unlock()
}
