package persist

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftwatch/backend/internal/session"
)

func waitForEvents(t *testing.T, r *FileRecorder, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Stats().TotalEpisodes >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("recorder never reached %d events (got %d)", want, r.Stats().TotalEpisodes)
}

func TestFileRecorderWritesEventsAndStats(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRecorder(dir)
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Record(session.NewDurationEvent(session.TabSwitch, time.Now(), 6*time.Second))
	r.Record(session.NewEvent(session.Entertainment, time.Now()))
	r.Record(session.NewDurationEvent(session.TabSwitch, time.Now(), 4*time.Second))

	waitForEvents(t, r, 3)

	stats := r.Stats()
	if stats.TotalEpisodes != 3 {
		t.Errorf("TotalEpisodes = %d, want 3", stats.TotalEpisodes)
	}
	if stats.EpisodesPerType["tab_switch"] != 2 {
		t.Errorf("tab_switch count = %d, want 2", stats.EpisodesPerType["tab_switch"])
	}
	if stats.TotalDistractedMs != 10000 {
		t.Errorf("TotalDistractedMs = %d, want 10000", stats.TotalDistractedMs)
	}
	if stats.LongestEpisodeMs != 6000 {
		t.Errorf("LongestEpisodeMs = %d, want 6000", stats.LongestEpisodeMs)
	}

	// Events land in the JSONL log, one valid JSON object per line.
	f, err := os.Open(filepath.Join(dir, eventsFileName))
	if err != nil {
		t.Fatalf("opening events log: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev session.DistractionEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Errorf("line %d is not valid JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("events.jsonl has %d lines, want 3", lines)
	}
}

func TestFileRecorderStatsSurviveReload(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRecorder(dir)
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	r.Record(session.NewDurationEvent(session.Idle, time.Now(), 90*time.Second))
	waitForEvents(t, r, 1)
	cancel()

	r2, err := NewFileRecorder(dir)
	if err != nil {
		t.Fatalf("NewFileRecorder (reload): %v", err)
	}
	stats := r2.Stats()
	if stats.TotalEpisodes != 1 {
		t.Errorf("reloaded TotalEpisodes = %d, want 1", stats.TotalEpisodes)
	}
	if stats.EpisodesPerType["idle"] != 1 {
		t.Errorf("reloaded idle count = %d, want 1", stats.EpisodesPerType["idle"])
	}
}

func TestFileRecorderDoesNotBlockWhenWriterStopped(t *testing.T) {
	r, err := NewFileRecorder(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}

	// No Run goroutine: fill the channel past capacity. Record must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			r.Record(session.NewEvent(session.Social, time.Now()))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked with a stopped writer")
	}
}
