package detect

import (
	"sync"
	"time"
)

const (
	timerVisibilityArm = "visibility_arm"
	timerIdle          = "idle"
)

// timerSet owns every named one-shot timer of the engine so teardown is a
// single operation. A leaked timer surviving past a voyage could emit a
// stale event later, which is a correctness bug, not just a resource leak.
type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer)}
}

// schedule arms (or re-arms) the named timer.
func (ts *timerSet) schedule(name string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[name]; ok {
		t.Stop()
	}
	ts.timers[name] = time.AfterFunc(d, fn)
}

func (ts *timerSet) cancel(name string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[name]; ok {
		t.Stop()
		delete(ts.timers, name)
	}
}

func (ts *timerSet) cancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for name, t := range ts.timers {
		t.Stop()
		delete(ts.timers, name)
	}
}
