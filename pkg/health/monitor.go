package health

import (
	"fmt"
	"sort"

	"fleetd/pkg/config"
	"fleetd/pkg/metrics"
)

// Status is the aggregate fleet health level
type Status string

const (
	StatusHealthy  Status = "HEALTHY"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// Severity of a single alert
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one threshold violation
type Alert struct {
	Metric         string   `json:"metric"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

// MetricsSummary is the snapshot subset carried in a report
type MetricsSummary struct {
	PoolUtilizationPct float64       `json:"pool_utilization_pct"`
	SuccessRate        float64       `json:"success_rate"`
	P95DurationMs      float64       `json:"p95_duration_ms"`
	QueueDepth         int           `json:"queue_depth"`
	QueueDepthTrend    metrics.Trend `json:"queue_depth_trend"`
	TotalProcessed     int64         `json:"total_processed"`
}

// Report is the outcome of one health assessment
type Report struct {
	Status          Status         `json:"status"`
	Alerts          []Alert        `json:"alerts"`
	MetricsSummary  MetricsSummary `json:"metrics_summary"`
	Recommendations []string       `json:"recommendations"`
}

// Thresholds holds the numeric limits for health assessment.
// The tuning values are operational defaults, not derived constants, so
// every field is overridable through configuration.
type Thresholds struct {
	UtilizationWarningPct  float64
	UtilizationCriticalPct float64
	SuccessRateCriticalPct float64
	P95LatencyCriticalMs   float64
	PhaseFailureCritical   float64
	QueueDepthWarning      int
}

// DefaultThresholds returns the stock limits
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		UtilizationWarningPct:  80,
		UtilizationCriticalPct: 95,
		SuccessRateCriticalPct: 75,
		P95LatencyCriticalMs:   120000,
		PhaseFailureCritical:   25,
		QueueDepthWarning:      10,
	}
}

// ThresholdsFromConfig builds thresholds from the health config section
func ThresholdsFromConfig(cfg config.HealthConfig) *Thresholds {
	t := &Thresholds{
		UtilizationWarningPct:  cfg.UtilizationWarningPct,
		UtilizationCriticalPct: cfg.UtilizationCriticalPct,
		SuccessRateCriticalPct: cfg.SuccessRateCriticalPct,
		P95LatencyCriticalMs:   cfg.P95LatencyCriticalMs,
		PhaseFailureCritical:   cfg.PhaseFailureCritical,
		QueueDepthWarning:      cfg.QueueDepthWarning,
	}
	t.sanitize()
	return t
}

// sanitize replaces malformed limits with the defaults so a bad config
// section degrades to stock behavior instead of disabling checks.
func (t *Thresholds) sanitize() {
	d := DefaultThresholds()
	if t.UtilizationWarningPct <= 0 {
		t.UtilizationWarningPct = d.UtilizationWarningPct
	}
	if t.UtilizationCriticalPct <= 0 {
		t.UtilizationCriticalPct = d.UtilizationCriticalPct
	}
	if t.SuccessRateCriticalPct <= 0 {
		t.SuccessRateCriticalPct = d.SuccessRateCriticalPct
	}
	if t.P95LatencyCriticalMs <= 0 {
		t.P95LatencyCriticalMs = d.P95LatencyCriticalMs
	}
	if t.PhaseFailureCritical <= 0 {
		t.PhaseFailureCritical = d.PhaseFailureCritical
	}
	if t.QueueDepthWarning <= 0 {
		t.QueueDepthWarning = d.QueueDepthWarning
	}
}

// AssessHealth evaluates a metrics snapshot against thresholds.
// Pure function: same snapshot and thresholds always yield the same report.
// Each metric is checked independently, first-match-wins within a metric,
// so a report can carry several alerts at once.
func AssessHealth(snap *metrics.PoolMetricsSnapshot, thresholds *Thresholds) *Report {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	} else {
		thresholds.sanitize()
	}

	report := &Report{
		Status: StatusHealthy,
		MetricsSummary: MetricsSummary{
			PoolUtilizationPct: snap.PoolUtilizationPct,
			SuccessRate:        snap.SuccessRate,
			P95DurationMs:      snap.P95DurationMs,
			QueueDepth:         snap.QueueDepth,
			QueueDepthTrend:    snap.QueueDepthTrend,
			TotalProcessed:     snap.TotalProcessed,
		},
	}

	switch {
	case snap.PoolUtilizationPct >= thresholds.UtilizationCriticalPct:
		report.addAlert(Alert{
			Metric:         "pool_utilization",
			Severity:       SeverityCritical,
			Message:        fmt.Sprintf("pool utilization at %.1f%%", snap.PoolUtilizationPct),
			Recommendation: "scale up immediately",
		})
	case snap.PoolUtilizationPct >= thresholds.UtilizationWarningPct:
		report.addAlert(Alert{
			Metric:         "pool_utilization",
			Severity:       SeverityWarning,
			Message:        fmt.Sprintf("pool utilization at %.1f%%", snap.PoolUtilizationPct),
			Recommendation: "consider scaling up",
		})
	}

	// success rate is meaningless before anything has been processed
	if snap.TotalProcessed > 0 && snap.SuccessRate <= thresholds.SuccessRateCriticalPct {
		report.addAlert(Alert{
			Metric:         "success_rate",
			Severity:       SeverityCritical,
			Message:        fmt.Sprintf("success rate at %.1f%%", snap.SuccessRate),
			Recommendation: "investigate recent failures",
		})
	}

	if snap.P95DurationMs >= thresholds.P95LatencyCriticalMs {
		report.addAlert(Alert{
			Metric:         "p95_duration_ms",
			Severity:       SeverityCritical,
			Message:        fmt.Sprintf("p95 workflow duration at %.0fms", snap.P95DurationMs),
			Recommendation: "investigate slow workflows",
		})
	}

	// sorted so the alert list is stable across calls
	phases := make([]string, 0, len(snap.FailureRateByPhase))
	for phase := range snap.FailureRateByPhase {
		phases = append(phases, phase)
	}
	sort.Strings(phases)
	for _, phase := range phases {
		rate := snap.FailureRateByPhase[phase]
		if rate >= thresholds.PhaseFailureCritical {
			report.addAlert(Alert{
				Metric:         fmt.Sprintf("failure_rate_%s", phase),
				Severity:       SeverityCritical,
				Message:        fmt.Sprintf("phase %s failing at %.1f%%", phase, rate),
				Recommendation: fmt.Sprintf("investigate %s phase failures", phase),
			})
		}
	}

	if snap.QueueDepth >= thresholds.QueueDepthWarning && snap.QueueDepthTrend == metrics.TrendIncreasing {
		report.addAlert(Alert{
			Metric:         "queue_depth",
			Severity:       SeverityWarning,
			Message:        fmt.Sprintf("queue depth at %d and rising", snap.QueueDepth),
			Recommendation: "consider scaling up",
		})
	}

	report.buildRecommendations()
	return report
}

func (r *Report) addAlert(a Alert) {
	r.Alerts = append(r.Alerts, a)
	if a.Severity == SeverityCritical {
		r.Status = StatusCritical
	} else if r.Status != StatusCritical {
		r.Status = StatusWarning
	}
}

// buildRecommendations copies alert recommendations, critical first,
// collapsing duplicates.
func (r *Report) buildRecommendations() {
	seen := make(map[string]bool)
	for _, severity := range []Severity{SeverityCritical, SeverityWarning} {
		for _, a := range r.Alerts {
			if a.Severity != severity || seen[a.Recommendation] {
				continue
			}
			seen[a.Recommendation] = true
			r.Recommendations = append(r.Recommendations, a.Recommendation)
		}
	}
}
