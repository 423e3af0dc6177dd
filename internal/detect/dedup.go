package detect

import (
	"fmt"
	"sync"
	"time"

	"github.com/driftwatch/backend/internal/session"
)

// Deduper suppresses repeat alerts. It is owned by the engine and scoped to
// the voyage: it survives UI reconnects (re-renders must not duplicate the
// detection engine's alert decisions) and is reset when the voyage ends or
// the user returns to course.
type Deduper struct {
	mu        sync.Mutex
	active    map[string]time.Time
	lastAlert time.Time

	bucket    time.Duration
	cooldown  time.Duration
	retention time.Duration
}

func NewDeduper(bucket, cooldown, retention time.Duration) *Deduper {
	return &Deduper{
		active:    make(map[string]time.Time),
		bucket:    bucket,
		cooldown:  cooldown,
		retention: retention,
	}
}

// SetWindows retunes the dedup windows (config reload).
func (d *Deduper) SetWindows(bucket, cooldown, retention time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bucket = bucket
	d.cooldown = cooldown
	d.retention = retention
}

// ShouldAlert decides whether a new alert for typ may fire at now. An alert
// is suppressed when its (type, time bucket) window key was already used, or
// when any alert fired within the cooldown regardless of type — the latter
// prevents alert storms when several detectors flip in the same moment.
// Window keys older than the retention are evicted on every check to bound
// memory.
func (d *Deduper) ShouldAlert(typ session.DistractionType, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, ts := range d.active {
		if now.Sub(ts) > d.retention {
			delete(d.active, key)
		}
	}

	key := fmt.Sprintf("%s:%d", typ, now.UnixMilli()/d.bucket.Milliseconds())
	if _, used := d.active[key]; used {
		return false
	}
	if !d.lastAlert.IsZero() && now.Sub(d.lastAlert) < d.cooldown {
		return false
	}

	d.active[key] = now
	d.lastAlert = now
	return true
}

// Reset clears the record for the active episode.
func (d *Deduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = make(map[string]time.Time)
	d.lastAlert = time.Time{}
}

// windowCount reports tracked window keys (test hook for eviction).
func (d *Deduper) windowCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}
