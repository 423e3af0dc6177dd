package detect

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is the engine's own resource footprint, included in
// diagnostics so a runaway analysis loop is visible from the status
// endpoint.
type ProcessStats struct {
	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`
}

// procSampler caches gopsutil reads so diagnostics snapshots don't issue
// syscalls on every detector transition.
type procSampler struct {
	mu     sync.Mutex
	proc   *process.Process
	last   ProcessStats
	lastAt time.Time
}

func newProcSampler() *procSampler {
	s := &procSampler{}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}
	return s
}

func (s *procSampler) sample() ProcessStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return ProcessStats{}
	}
	if !s.lastAt.IsZero() && time.Since(s.lastAt) < 5*time.Second {
		return s.last
	}

	var stats ProcessStats
	if cpu, err := s.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	s.last = stats
	s.lastAt = time.Now()
	return stats
}
