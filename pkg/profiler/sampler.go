package profiler

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ResourceSnapshot is one point-in-time resource reading of this process
type ResourceSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPct      float64   `json:"cpu_pct"`
	MemoryMB    float64   `json:"memory_mb"`
	MemoryPct   float64   `json:"memory_pct"`
	IOReadMB    float64   `json:"io_read_mb"`
	IOWriteMB   float64   `json:"io_write_mb"`
	ThreadCount int       `json:"thread_count"`
}

const bytesPerMB = 1024 * 1024

// sampler reads process resource usage on a fixed interval and appends
// snapshots to its profile until cancelled. When the host does not support
// resource introspection it degrades to zero-valued snapshots so the
// wrapped operation is never failed by the profiler.
type sampler struct {
	proc     *process.Process
	interval time.Duration
	stopped  chan struct{}
}

func newSampler(interval time.Duration) *sampler {
	s := &sampler{
		interval: interval,
		stopped:  make(chan struct{}),
	}
	// nil proc means every snapshot comes back zero-valued
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = proc
	}
	return s
}

// snapshot reads current usage. Partial failures zero the affected fields
// only; io counters are unavailable on some platforms.
func (s *sampler) snapshot() ResourceSnapshot {
	snap := ResourceSnapshot{Timestamp: time.Now()}
	if s.proc == nil {
		return snap
	}

	if cpu, err := s.proc.CPUPercent(); err == nil {
		snap.CPUPct = cpu
	}
	if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
		snap.MemoryMB = float64(mem.RSS) / bytesPerMB
	}
	if pct, err := s.proc.MemoryPercent(); err == nil {
		snap.MemoryPct = float64(pct)
	}
	if io, err := s.proc.IOCounters(); err == nil && io != nil {
		snap.IOReadMB = float64(io.ReadBytes) / bytesPerMB
		snap.IOWriteMB = float64(io.WriteBytes) / bytesPerMB
	}
	if threads, err := s.proc.NumThreads(); err == nil {
		snap.ThreadCount = int(threads)
	}
	return snap
}

// run samples until the context ends, then closes stopped. The owner must
// wait on stopped after cancelling so no sampler outlives its profile.
func (s *sampler) run(ctx context.Context, appendSnapshot func(ResourceSnapshot)) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			appendSnapshot(s.snapshot())
		}
	}
}
