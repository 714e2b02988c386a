package metrics

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPercentileProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	durationsGen := gen.SliceOfN(50, gen.Float64Range(1, 1e6)).
		SuchThat(func(v []float64) bool { return len(v) > 0 })

	properties.Property("percentiles stay within observed bounds", prop.ForAll(
		func(durations []float64) bool {
			c := NewCollector()
			min, max := durations[0], durations[0]
			for i, d := range durations {
				c.RecordWorkflow(fmt.Sprintf("wf-%d", i), d, true, "execution", 0)
				if d < min {
					min = d
				}
				if d > max {
					max = d
				}
			}
			snap := c.GetMetrics(4, 0, 0)
			for _, p := range []float64{snap.P50DurationMs, snap.P95DurationMs, snap.P99DurationMs} {
				if p < min || p > max {
					return false
				}
			}
			return snap.P50DurationMs <= snap.P95DurationMs && snap.P95DurationMs <= snap.P99DurationMs
		},
		durationsGen,
	))

	properties.Property("window never exceeds its size and keeps the newest records", prop.ForAll(
		func(total int, window int) bool {
			c := NewCollector(WithWindowSize(window))
			for i := 0; i < total; i++ {
				c.RecordWorkflow(fmt.Sprintf("wf-%d", i), float64(i), true, "execution", 0)
			}
			if c.WindowLen() > window {
				return false
			}
			if total < window {
				return c.WindowLen() == total
			}
			// the max retained duration must be the last recorded one
			snap := c.GetMetrics(1, 0, 0)
			return snap.P99DurationMs == float64(total-1)
		},
		gen.IntRange(1, 300),
		gen.IntRange(1, 99),
	))

	properties.Property("success rate matches succeeded over processed", prop.ForAll(
		func(outcomes []bool) bool {
			c := NewCollector()
			ok := 0
			for i, success := range outcomes {
				c.RecordWorkflow(fmt.Sprintf("wf-%d", i), 100, success, "execution", 0)
				if success {
					ok++
				}
			}
			snap := c.GetMetrics(1, 0, 0)
			want := float64(ok) / float64(len(outcomes)) * 100
			diff := snap.SuccessRate - want
			return diff < 1e-9 && diff > -1e-9
		},
		gen.SliceOfN(40, gen.Bool()).SuchThat(func(v []bool) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t)
}
