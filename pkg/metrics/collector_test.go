package metrics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMetricsEmptyWindow(t *testing.T) {
	c := NewCollector()

	snap := c.GetMetrics(0, 0, 0)
	require.NotNil(t, snap)

	assert.Equal(t, 0.0, snap.P50DurationMs)
	assert.Equal(t, 0.0, snap.P95DurationMs)
	assert.Equal(t, 0.0, snap.P99DurationMs)
	assert.Equal(t, 0.0, snap.AvgDurationMs)
	assert.Equal(t, int64(0), snap.TotalProcessed)
	assert.Equal(t, TrendStable, snap.QueueDepthTrend)
}

func TestPercentilesSingleRecord(t *testing.T) {
	c := NewCollector()
	c.RecordWorkflow("wf-1", 1000, true, "execution", 0)

	snap := c.GetMetrics(4, 1, 0)
	assert.Equal(t, 1000.0, snap.P50DurationMs)
	assert.Equal(t, 1000.0, snap.P95DurationMs)
	assert.Equal(t, 1000.0, snap.P99DurationMs)
}

func TestPercentilesHundredRecords(t *testing.T) {
	c := NewCollector()
	for i := 1; i <= 100; i++ {
		c.RecordWorkflow(fmt.Sprintf("wf-%d", i), float64(i*1000), true, "execution", 0)
	}

	snap := c.GetMetrics(4, 0, 0)
	assert.InDelta(t, 50000, snap.P50DurationMs, 5000)
	assert.InDelta(t, 95000, snap.P95DurationMs, 5000)
	assert.InDelta(t, 97500, snap.P99DurationMs, 2500)
}

func TestSuccessRate(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 8; i++ {
		c.RecordWorkflow(fmt.Sprintf("ok-%d", i), 1000, true, "execution", 0)
	}
	for i := 0; i < 2; i++ {
		c.RecordWorkflow(fmt.Sprintf("bad-%d", i), 1000, false, "execution", 0)
	}

	snap := c.GetMetrics(4, 0, 0)
	assert.Equal(t, int64(10), snap.TotalProcessed)
	assert.Equal(t, int64(8), snap.TotalSucceeded)
	assert.Equal(t, int64(2), snap.TotalFailed)
	assert.InDelta(t, 80.0, snap.SuccessRate, 0.001)
}

func TestFailureRateByPhase(t *testing.T) {
	c := NewCollector()

	// phase A: 5 records, 1 failure; phase B: 10 records, 1 failure
	for i := 0; i < 4; i++ {
		c.RecordWorkflow(fmt.Sprintf("a-%d", i), 1000, true, "provisioning", 0)
	}
	c.RecordWorkflow("a-fail", 1000, false, "provisioning", 0)
	for i := 0; i < 9; i++ {
		c.RecordWorkflow(fmt.Sprintf("b-%d", i), 1000, true, "execution", 0)
	}
	c.RecordWorkflow("b-fail", 1000, false, "execution", 0)

	snap := c.GetMetrics(4, 0, 0)
	assert.InDelta(t, 20.0, snap.FailureRateByPhase["provisioning"], 0.001)
	assert.InDelta(t, 10.0, snap.FailureRateByPhase["execution"], 0.001)
}

func TestDefaultPhase(t *testing.T) {
	c := NewCollector()
	c.RecordWorkflow("wf-1", 1000, false, "", 0)

	snap := c.GetMetrics(1, 0, 0)
	assert.Contains(t, snap.FailureRateByPhase, "execution")
}

func TestRetrySuccessRate(t *testing.T) {
	c := NewCollector()

	// 4 retried workflows, 3 of which eventually succeeded
	c.RecordWorkflow("r-1", 1000, true, "execution", 1)
	c.RecordWorkflow("r-2", 1000, true, "execution", 2)
	c.RecordWorkflow("r-3", 1000, true, "execution", 1)
	c.RecordWorkflow("r-4", 1000, false, "execution", 3)
	// non-retried records must not count
	c.RecordWorkflow("n-1", 1000, true, "execution", 0)

	snap := c.GetMetrics(4, 0, 0)
	assert.InDelta(t, 75.0, snap.RetrySuccessRate, 0.001)
}

func TestQueueDepthTrend(t *testing.T) {
	tests := []struct {
		name   string
		depths []int
		want   Trend
	}{
		{"increasing", []int{1, 1, 2, 3, 5, 8, 13, 21}, TrendIncreasing},
		{"decreasing", []int{21, 13, 8, 5, 3, 2, 1, 1}, TrendDecreasing},
		{"stable", []int{5, 5, 5, 5, 5, 5, 5, 5}, TrendStable},
		{"from empty", []int{0, 0, 0, 0, 1, 2, 3, 4}, TrendIncreasing},
		{"too few samples", []int{3}, TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector()
			for _, d := range tt.depths {
				c.RecordQueueDepth(d)
			}
			snap := c.GetMetrics(4, 0, 0)
			assert.Equal(t, tt.want, snap.QueueDepthTrend)
		})
	}
}

func TestWindowEviction(t *testing.T) {
	c := NewCollector(WithWindowSize(10))
	for i := 1; i <= 20; i++ {
		c.RecordWorkflow(fmt.Sprintf("wf-%d", i), float64(i*1000), true, "execution", 0)
	}

	require.Equal(t, 10, c.WindowLen())

	// retained records are 11000..20000
	snap := c.GetMetrics(4, 0, 0)
	assert.Equal(t, int64(10), snap.TotalProcessed)
	assert.InDelta(t, 15500, snap.AvgDurationMs, 1000)
}

func TestPeakUtilizationMonotonic(t *testing.T) {
	c := NewCollector()

	snap := c.GetMetrics(10, 8, 0)
	assert.InDelta(t, 80.0, snap.PeakUtilizationPct, 0.001)

	snap = c.GetMetrics(10, 3, 0)
	assert.InDelta(t, 80.0, snap.PeakUtilizationPct, 0.001)
	assert.InDelta(t, 30.0, snap.PoolUtilizationPct, 0.001)

	snap = c.GetMetrics(10, 9, 0)
	assert.InDelta(t, 90.0, snap.PeakUtilizationPct, 0.001)

	c.Reset()
	snap = c.GetMetrics(10, 0, 0)
	assert.Equal(t, 0.0, snap.PeakUtilizationPct)
}

func TestLatencyTrend(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 10; i++ {
		c.RecordWorkflow(fmt.Sprintf("fast-%d", i), 1000, true, "execution", 0)
	}
	for i := 0; i < 10; i++ {
		c.RecordWorkflow(fmt.Sprintf("slow-%d", i), 5000, true, "execution", 0)
	}

	snap := c.GetMetrics(4, 0, 0)
	assert.Equal(t, TrendIncreasing, snap.LatencyTrend)
}

func TestSnapshotIsIdempotentReadApartFromPeak(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 10; i++ {
		c.RecordWorkflow(fmt.Sprintf("wf-%d", i), float64((i+1)*100), i%2 == 0, "execution", 0)
	}

	first := c.GetMetrics(4, 2, 3)
	second := c.GetMetrics(4, 2, 3)
	assert.Equal(t, first, second)
}

func TestAvailableSlotsNeverNegative(t *testing.T) {
	c := NewCollector()
	snap := c.GetMetrics(2, 5, 0)
	assert.Equal(t, 0, snap.AvailableSlots)
}
