package jobs

import (
	"context"
	"time"

	"fleetd/internal/controlplane"
	"fleetd/pkg/config"
	"fleetd/pkg/logger"
)

// ScalingJob runs one auto-scaling evaluation per tick and feeds the queue
// depth sample taken at the same instant into the metrics window.
type ScalingJob struct {
	cp       *controlplane.ControlPlane
	interval time.Duration
}

// NewScalingJob creates the scaling evaluation job
func NewScalingJob(cp *controlplane.ControlPlane, cfg config.PoolConfig) *ScalingJob {
	return &ScalingJob{
		cp:       cp,
		interval: time.Duration(cfg.EvaluateInterval) * time.Second,
	}
}

func (j *ScalingJob) Name() string            { return "pool_scaling" }
func (j *ScalingJob) Interval() time.Duration { return j.interval }

func (j *ScalingJob) Run(ctx context.Context) error {
	j.cp.Collector().RecordQueueDepth(j.cp.QueueDepth())
	j.cp.Pool().EvaluateScaling(ctx)
	return nil
}

// StalenessJob restarts workers whose heartbeat exceeded the staleness window
type StalenessJob struct {
	cp       *controlplane.ControlPlane
	interval time.Duration
}

// NewStalenessJob creates the stale worker sweep job
func NewStalenessJob(cp *controlplane.ControlPlane, cfg config.PoolConfig) *StalenessJob {
	// sweep at half the staleness window so a dead worker is caught within
	// one threshold and a half
	interval := time.Duration(cfg.StaleThreshold) * time.Second / 2
	if interval < time.Second {
		interval = time.Second
	}
	return &StalenessJob{cp: cp, interval: interval}
}

func (j *StalenessJob) Name() string            { return "worker_staleness" }
func (j *StalenessJob) Interval() time.Duration { return j.interval }

func (j *StalenessJob) Run(ctx context.Context) error {
	j.cp.Pool().RestartStaleWorkers(ctx)
	return nil
}

// HealthLogJob periodically assesses fleet health and logs degradations
type HealthLogJob struct {
	cp       *controlplane.ControlPlane
	interval time.Duration
}

// NewHealthLogJob creates the health assessment job
func NewHealthLogJob(cp *controlplane.ControlPlane, interval time.Duration) *HealthLogJob {
	return &HealthLogJob{cp: cp, interval: interval}
}

func (j *HealthLogJob) Name() string            { return "health_assessment" }
func (j *HealthLogJob) Interval() time.Duration { return j.interval }

func (j *HealthLogJob) Run(ctx context.Context) error {
	report := j.cp.AssessHealth()
	if len(report.Alerts) == 0 {
		return nil
	}
	for _, alert := range report.Alerts {
		logger.WarnCtx(ctx, "health alert, metric: %s, severity: %s, message: %s, recommendation: %s",
			alert.Metric, alert.Severity, alert.Message, alert.Recommendation)
	}
	return nil
}
