package profiler

import (
	"context"
	"sync"
	"time"

	"fleetd/pkg/config"
	"fleetd/pkg/logger"

	"github.com/google/uuid"
)

// OperationProfile is the sealed record of one profiled operation
type OperationProfile struct {
	ID         string                 `json:"id"`
	Operation  string                 `json:"operation"`
	StartedAt  time.Time              `json:"started_at"`
	EndedAt    time.Time              `json:"ended_at"`
	WallTimeMs float64                `json:"wall_time_ms"`
	Snapshots  []ResourceSnapshot     `json:"snapshots"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// activeProfile is a profile still being sampled
type activeProfile struct {
	mu      sync.Mutex
	profile *OperationProfile

	sampler    *sampler
	cancel     context.CancelFunc
	cancelOnce sync.Once
}

func (a *activeProfile) appendSnapshot(s ResourceSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profile.Snapshots = append(a.profile.Snapshots, s)
}

// stop cancels the sampler exactly once and waits for it to exit
func (a *activeProfile) stop() {
	a.cancelOnce.Do(a.cancel)
	<-a.sampler.stopped
}

// Profiler measures wall time and resource usage of arbitrary operations.
// Each started profile owns one sampler goroutine whose lifetime is scoped
// to the profile: finishing the profile (or the owning context ending)
// cancels the sampler, and the cancellation is awaited before the profile
// is sealed, so no sampler outlives its operation.
type Profiler struct {
	mu sync.Mutex

	enabled         bool
	sampleInterval  time.Duration
	maxPerOp        int
	cleanupInterval int

	active      map[string]*activeProfile
	completed   map[string][]*OperationProfile
	completions int
}

// NewProfiler creates a profiler from configuration
func NewProfiler(cfg config.ProfilerConfig) *Profiler {
	return &Profiler{
		enabled:         cfg.Enabled,
		sampleInterval:  time.Duration(cfg.SampleInterval) * time.Millisecond,
		maxPerOp:        cfg.MaxProfilesPerOp,
		cleanupInterval: cfg.CleanupInterval,
		active:          make(map[string]*activeProfile),
		completed:       make(map[string][]*OperationProfile),
	}
}

// StartProfile begins profiling an operation and returns the profile id.
// Returns an empty id when profiling is disabled; callers pass the empty id
// straight back to FinishProfile, which treats it as unknown.
func (p *Profiler) StartProfile(ctx context.Context, operation string, metadata map[string]interface{}) string {
	if !p.enabled {
		return ""
	}

	id := uuid.New().String()
	s := newSampler(p.sampleInterval)

	samplerCtx, cancel := context.WithCancel(ctx)
	ap := &activeProfile{
		profile: &OperationProfile{
			ID:        id,
			Operation: operation,
			StartedAt: time.Now(),
			Metadata:  metadata,
		},
		sampler: s,
		cancel:  cancel,
	}
	ap.profile.Snapshots = append(ap.profile.Snapshots, s.snapshot())

	p.mu.Lock()
	p.active[id] = ap
	p.mu.Unlock()

	go s.run(samplerCtx, ap.appendSnapshot)
	return id
}

// FinishProfile seals a profile and stores it keyed by operation name.
// Returns nil when the id is unknown or already finished.
func (p *Profiler) FinishProfile(id string, metadata map[string]interface{}) *OperationProfile {
	p.mu.Lock()
	ap, ok := p.active[id]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.active, id)
	p.mu.Unlock()

	ap.stop()

	ap.mu.Lock()
	profile := ap.profile
	ap.mu.Unlock()

	profile.EndedAt = time.Now()
	profile.WallTimeMs = float64(profile.EndedAt.Sub(profile.StartedAt)) / float64(time.Millisecond)
	for k, v := range metadata {
		if profile.Metadata == nil {
			profile.Metadata = make(map[string]interface{})
		}
		profile.Metadata[k] = v
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	history := append(p.completed[profile.Operation], profile)
	if p.maxPerOp > 0 && len(history) > p.maxPerOp {
		history = history[len(history)-p.maxPerOp:]
	}
	p.completed[profile.Operation] = history

	p.completions++
	if p.cleanupInterval > 0 && p.completions%p.cleanupInterval == 0 {
		p.cleanupLocked()
	}

	return profile
}

// cleanupLocked drops empty histories and re-enforces the per-operation bound
func (p *Profiler) cleanupLocked() {
	for op, history := range p.completed {
		if len(history) == 0 {
			delete(p.completed, op)
			continue
		}
		if p.maxPerOp > 0 && len(history) > p.maxPerOp {
			p.completed[op] = history[len(history)-p.maxPerOp:]
		}
	}
}

// OperationStats aggregates completed profiles of one operation
type OperationStats struct {
	Count int `json:"count"`

	WallTimeAvgMs   float64 `json:"wall_time_avg_ms"`
	WallTimeMinMs   float64 `json:"wall_time_min_ms"`
	WallTimeMaxMs   float64 `json:"wall_time_max_ms"`
	WallTimeTotalMs float64 `json:"wall_time_total_ms"`

	CPUAvgPct float64 `json:"cpu_avg_pct"`
	CPUMaxPct float64 `json:"cpu_max_pct"`

	PeakMemoryAvgMB float64 `json:"peak_memory_avg_mb"`
	PeakMemoryMaxMB float64 `json:"peak_memory_max_mb"`

	TotalIOAvgMB float64 `json:"total_io_avg_mb"`
	TotalIOMaxMB float64 `json:"total_io_max_mb"`
}

// GetReport aggregates completed profiles per operation
func (p *Profiler) GetReport() map[string]OperationStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := make(map[string]OperationStats, len(p.completed))
	for op, history := range p.completed {
		if len(history) == 0 {
			continue
		}

		stats := OperationStats{
			Count:         len(history),
			WallTimeMinMs: history[0].WallTimeMs,
		}
		var cpuSum, memSum, ioSum float64
		for _, profile := range history {
			stats.WallTimeTotalMs += profile.WallTimeMs
			if profile.WallTimeMs < stats.WallTimeMinMs {
				stats.WallTimeMinMs = profile.WallTimeMs
			}
			if profile.WallTimeMs > stats.WallTimeMaxMs {
				stats.WallTimeMaxMs = profile.WallTimeMs
			}

			cpu := profileMaxCPU(profile)
			cpuSum += cpu
			if cpu > stats.CPUMaxPct {
				stats.CPUMaxPct = cpu
			}

			mem := profilePeakMemory(profile)
			memSum += mem
			if mem > stats.PeakMemoryMaxMB {
				stats.PeakMemoryMaxMB = mem
			}

			io := profileTotalIO(profile)
			ioSum += io
			if io > stats.TotalIOMaxMB {
				stats.TotalIOMaxMB = io
			}
		}

		n := float64(len(history))
		stats.WallTimeAvgMs = stats.WallTimeTotalMs / n
		stats.CPUAvgPct = cpuSum / n
		stats.PeakMemoryAvgMB = memSum / n
		stats.TotalIOAvgMB = ioSum / n
		report[op] = stats
	}
	return report
}

// ClearProfiles drops all completed profile history
func (p *Profiler) ClearProfiles() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = make(map[string][]*OperationProfile)
	p.completions = 0
}

// Shutdown finishes every still-active profile so no sampler goroutine
// survives the profiler.
func (p *Profiler) Shutdown() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if profile := p.FinishProfile(id, nil); profile != nil {
			logger.Debugf("profile finished on shutdown, operation: %s, wall_ms: %.1f", profile.Operation, profile.WallTimeMs)
		}
	}
}

func profileMaxCPU(p *OperationProfile) float64 {
	max := 0.0
	for _, s := range p.Snapshots {
		if s.CPUPct > max {
			max = s.CPUPct
		}
	}
	return max
}

func profilePeakMemory(p *OperationProfile) float64 {
	max := 0.0
	for _, s := range p.Snapshots {
		if s.MemoryMB > max {
			max = s.MemoryMB
		}
	}
	return max
}

// profileTotalIO is the io delta between the last and first snapshot
func profileTotalIO(p *OperationProfile) float64 {
	if len(p.Snapshots) < 2 {
		return 0
	}
	first := p.Snapshots[0]
	last := p.Snapshots[len(p.Snapshots)-1]
	return (last.IOReadMB - first.IOReadMB) + (last.IOWriteMB - first.IOWriteMB)
}
