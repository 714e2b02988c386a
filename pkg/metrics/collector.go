package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Trend direction of a windowed series
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// workflowRecord is one completed-workflow observation.
// Insertion order matters; the windows evict FIFO so they always hold the
// most recent N records.
type workflowRecord struct {
	durationMs float64
	success    bool
	phase      string
	retryCount int
	recordedAt time.Time
}

// PoolMetricsSnapshot is an immutable computed read of collector state.
// It is a pure function of the recorded windows plus the pool figures the
// caller passes in; no field derives from wall-clock at snapshot time.
type PoolMetricsSnapshot struct {
	PoolSize           int     `json:"pool_size"`
	ActiveWorkflows    int     `json:"active_workflows"`
	AvailableSlots     int     `json:"available_slots"`
	PoolUtilizationPct float64 `json:"pool_utilization_pct"`
	PeakUtilizationPct float64 `json:"peak_utilization_pct"`

	QueueDepth        int     `json:"queue_depth"`
	QueueDepthTrend   Trend   `json:"queue_depth_trend"`
	AvgSlotWaitTimeMs float64 `json:"avg_slot_wait_time_ms"`

	TotalProcessed int64   `json:"total_processed"`
	TotalSucceeded int64   `json:"total_succeeded"`
	TotalFailed    int64   `json:"total_failed"`
	SuccessRate    float64 `json:"success_rate"`

	P50DurationMs float64 `json:"p50_duration_ms"`
	P95DurationMs float64 `json:"p95_duration_ms"`
	P99DurationMs float64 `json:"p99_duration_ms"`
	AvgDurationMs float64 `json:"avg_duration_ms"`

	FailureRateByPhase map[string]float64 `json:"failure_rate_by_phase"`
	RetrySuccessRate   float64            `json:"retry_success_rate"`

	ThroughputTrend Trend `json:"throughput_trend"`
	LatencyTrend    Trend `json:"latency_trend"`
}

// Collector ingests completed-workflow records and queue-depth samples into
// bounded sliding windows and computes percentiles and trends on demand.
// A single mutex gives the single-writer discipline; snapshots copy the
// window so readers never race an in-flight record call.
type Collector struct {
	mu sync.Mutex

	windowSize      int // 0 means unbounded
	depthWindowSize int
	trendThreshold  float64

	records []workflowRecord
	depths  []int

	peakUtilizationPct float64
}

// Option configures a Collector
type Option func(*Collector)

// WithWindowSize bounds the workflow record window
func WithWindowSize(n int) Option {
	return func(c *Collector) { c.windowSize = n }
}

// WithDepthWindowSize bounds the queue depth sample window
func WithDepthWindowSize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.depthWindowSize = n
		}
	}
}

// WithTrendThreshold sets the relative change treated as a trend
func WithTrendThreshold(t float64) Option {
	return func(c *Collector) {
		if t > 0 {
			c.trendThreshold = t
		}
	}
}

// NewCollector creates a metrics collector
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		depthWindowSize: 120,
		trendThreshold:  0.10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordWorkflow appends a completed-workflow record, evicting the oldest
// record once the window is full.
func (c *Collector) RecordWorkflow(id string, durationMs float64, success bool, phase string, retryCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if phase == "" {
		phase = "execution"
	}
	c.records = append(c.records, workflowRecord{
		durationMs: durationMs,
		success:    success,
		phase:      phase,
		retryCount: retryCount,
		recordedAt: time.Now(),
	})
	if c.windowSize > 0 && len(c.records) > c.windowSize {
		c.records = c.records[len(c.records)-c.windowSize:]
	}
}

// RecordQueueDepth appends a queue depth sample
func (c *Collector) RecordQueueDepth(depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.depths = append(c.depths, depth)
	if len(c.depths) > c.depthWindowSize {
		c.depths = c.depths[len(c.depths)-c.depthWindowSize:]
	}
}

// Reset clears both windows and the peak utilization watermark
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = nil
	c.depths = nil
	c.peakUtilizationPct = 0
}

// WindowLen returns the number of records currently retained
func (c *Collector) WindowLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// GetMetrics computes a snapshot over the current windows.
// Peak utilization is a monotonically non-decreasing running maximum,
// carried across calls until Reset.
func (c *Collector) GetMetrics(poolSize, activeWorkflows, queueDepth int) *PoolMetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &PoolMetricsSnapshot{
		PoolSize:           poolSize,
		ActiveWorkflows:    activeWorkflows,
		QueueDepth:         queueDepth,
		FailureRateByPhase: make(map[string]float64),
		QueueDepthTrend:    TrendStable,
		ThroughputTrend:    TrendStable,
		LatencyTrend:       TrendStable,
	}

	if poolSize > 0 {
		snap.AvailableSlots = poolSize - activeWorkflows
		if snap.AvailableSlots < 0 {
			snap.AvailableSlots = 0
		}
		snap.PoolUtilizationPct = float64(activeWorkflows) / float64(poolSize) * 100
	}
	if snap.PoolUtilizationPct > c.peakUtilizationPct {
		c.peakUtilizationPct = snap.PoolUtilizationPct
	}
	snap.PeakUtilizationPct = c.peakUtilizationPct

	durations := make([]float64, 0, len(c.records))
	phaseTotals := make(map[string]int)
	phaseFailed := make(map[string]int)
	var retried, retriedOK int
	var waitSum float64

	for _, r := range c.records {
		durations = append(durations, r.durationMs)
		snap.TotalProcessed++
		if r.success {
			snap.TotalSucceeded++
		} else {
			snap.TotalFailed++
			phaseFailed[r.phase]++
		}
		phaseTotals[r.phase]++
		if r.retryCount > 0 {
			retried++
			if r.success {
				retriedOK++
			}
		}
		waitSum += r.durationMs
	}

	if snap.TotalProcessed > 0 {
		snap.SuccessRate = float64(snap.TotalSucceeded) / float64(snap.TotalProcessed) * 100
		snap.AvgDurationMs = waitSum / float64(snap.TotalProcessed)
	}
	for phase, total := range phaseTotals {
		snap.FailureRateByPhase[phase] = float64(phaseFailed[phase]) / float64(total) * 100
	}
	if retried > 0 {
		snap.RetrySuccessRate = float64(retriedOK) / float64(retried) * 100
	}

	snap.P50DurationMs = percentile(durations, 50)
	snap.P95DurationMs = percentile(durations, 95)
	snap.P99DurationMs = percentile(durations, 99)
	snap.AvgSlotWaitTimeMs = snap.AvgDurationMs

	snap.QueueDepthTrend = c.depthTrendLocked()
	snap.LatencyTrend = c.latencyTrendLocked()
	snap.ThroughputTrend = c.throughputTrendLocked()

	return snap
}

// percentile computes the nearest-rank percentile over unsorted values:
// sort ascending, index = ceil(p/100*n)-1 clamped to [0, n-1].
// Empty input returns 0.
func percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0.0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// depthTrendLocked compares the mean of the second half of the depth window
// against the first half with a relative threshold.
func (c *Collector) depthTrendLocked() Trend {
	n := len(c.depths)
	if n < 2 {
		return TrendStable
	}
	mid := n / 2
	first := meanInts(c.depths[:mid])
	second := meanInts(c.depths[mid:])
	return compareMeans(first, second, c.trendThreshold)
}

func (c *Collector) latencyTrendLocked() Trend {
	n := len(c.records)
	if n < 2 {
		return TrendStable
	}
	mid := n / 2
	var first, second float64
	for _, r := range c.records[:mid] {
		first += r.durationMs
	}
	for _, r := range c.records[mid:] {
		second += r.durationMs
	}
	return compareMeans(first/float64(mid), second/float64(n-mid), c.trendThreshold)
}

// throughputTrendLocked compares completion rates (records per second) of
// the two window halves using record timestamps.
func (c *Collector) throughputTrendLocked() Trend {
	n := len(c.records)
	if n < 4 {
		return TrendStable
	}
	mid := n / 2
	firstSpan := c.records[mid-1].recordedAt.Sub(c.records[0].recordedAt).Seconds()
	secondSpan := c.records[n-1].recordedAt.Sub(c.records[mid].recordedAt).Seconds()
	if firstSpan <= 0 || secondSpan <= 0 {
		return TrendStable
	}
	firstRate := float64(mid) / firstSpan
	secondRate := float64(n-mid) / secondSpan
	return compareMeans(firstRate, secondRate, c.trendThreshold)
}

func compareMeans(first, second, threshold float64) Trend {
	if first == 0 {
		if second > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	change := (second - first) / first
	switch {
	case change > threshold:
		return TrendIncreasing
	case change < -threshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func meanInts(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
