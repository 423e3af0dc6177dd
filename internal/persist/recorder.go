// Package persist is the fire-and-forget sink for finalized distraction
// events. Recording must never block or fail detection: events are handed
// off on a buffered channel and dropped (with throttled logging) if the
// writer falls behind.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/driftwatch/backend/internal/session"
)

const (
	eventsFileName = "events.jsonl"
	statsFileName  = "stats.json"
	appDirName     = "driftwatch"
)

// Recorder accepts finalized distraction events. Implementations must not
// block the caller.
type Recorder interface {
	Record(ev session.DistractionEvent)
}

// FileRecorder appends events to a JSONL log and maintains aggregate stats
// alongside it.
type FileRecorder struct {
	dir    string
	events chan session.DistractionEvent

	mu    sync.Mutex
	stats *Stats

	dropped     int64
	lastDropLog time.Time
}

// NewFileRecorder creates a recorder rooted at dir. An empty dir selects
// $XDG_STATE_HOME/driftwatch (or ~/.local/state/driftwatch).
func NewFileRecorder(dir string) (*FileRecorder, error) {
	if dir == "" {
		base := os.Getenv("XDG_STATE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolving state dir: %w", err)
			}
			base = filepath.Join(home, ".local", "state")
		}
		dir = filepath.Join(base, appDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	stats, err := loadStats(filepath.Join(dir, statsFileName))
	if err != nil {
		log.Printf("Stats load error (starting fresh): %v", err)
		stats = newStats()
	}

	return &FileRecorder{
		dir:    dir,
		events: make(chan session.DistractionEvent, 64),
		stats:  stats,
	}, nil
}

// Record hands the event to the writer goroutine. Non-blocking: if the
// channel is full the event is dropped and the drop is logged at most once
// per 10 seconds.
func (r *FileRecorder) Record(ev session.DistractionEvent) {
	select {
	case r.events <- ev:
	default:
		r.mu.Lock()
		r.dropped++
		now := time.Now()
		if r.lastDropLog.IsZero() || now.Sub(r.lastDropLog) >= 10*time.Second {
			log.Printf("Distraction events dropped: %d (writer behind)", r.dropped)
			r.dropped = 0
			r.lastDropLog = now
		}
		r.mu.Unlock()
	}
}

// Run consumes the event channel until ctx is done, flushing each event to
// the JSONL log and updating aggregate stats.
func (r *FileRecorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			r.write(ev)
		}
	}
}

func (r *FileRecorder) write(ev session.DistractionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Event marshal error: %v", err)
		return
	}

	path := filepath.Join(r.dir, eventsFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("Event log open error: %v", err)
		return
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("Event log write error: %v", err)
	}
	f.Close()

	r.mu.Lock()
	r.stats.apply(ev)
	stats := *r.stats
	r.mu.Unlock()

	if err := saveStats(filepath.Join(r.dir, statsFileName), &stats); err != nil {
		log.Printf("Stats save error: %v", err)
	}
}

// Stats returns a copy of the current aggregates.
func (r *FileRecorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *r.stats
	s.EpisodesPerType = make(map[string]int, len(r.stats.EpisodesPerType))
	for k, v := range r.stats.EpisodesPerType {
		s.EpisodesPerType[k] = v
	}
	return s
}
