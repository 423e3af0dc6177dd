package persist

import (
	"encoding/json"
	"os"
	"time"

	"github.com/driftwatch/backend/internal/session"
)

// statsVersion is bumped when the schema changes so Load can migrate old
// files if needed.
const statsVersion = 1

// Stats is the persistent aggregate view over all recorded distraction
// events.
type Stats struct {
	Version int `json:"version"`

	TotalEpisodes     int            `json:"totalEpisodes"`
	EpisodesPerType   map[string]int `json:"episodesPerType"`
	TotalDistractedMs int64          `json:"totalDistractedMs"`
	LongestEpisodeMs  int64          `json:"longestEpisodeMs"`

	LastUpdated time.Time `json:"lastUpdated"`
}

func newStats() *Stats {
	return &Stats{
		Version:         statsVersion,
		EpisodesPerType: make(map[string]int),
	}
}

func (s *Stats) apply(ev session.DistractionEvent) {
	s.TotalEpisodes++
	s.EpisodesPerType[ev.Type.String()]++
	if ev.DurationMs != nil {
		s.TotalDistractedMs += *ev.DurationMs
		if *ev.DurationMs > s.LongestEpisodeMs {
			s.LongestEpisodeMs = *ev.DurationMs
		}
	}
	s.LastUpdated = time.Now()
}

func loadStats(path string) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newStats(), nil
		}
		return nil, err
	}

	stats := newStats()
	if err := json.Unmarshal(data, stats); err != nil {
		return nil, err
	}
	if stats.EpisodesPerType == nil {
		stats.EpisodesPerType = make(map[string]int)
	}
	stats.Version = statsVersion
	return stats, nil
}

func saveStats(path string, stats *Stats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-rename so a crash mid-write can't corrupt the file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
