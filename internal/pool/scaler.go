package pool

import (
	"context"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/logger"
)

// EvaluateScaling runs one auto-scaling evaluation.
// demand_ratio = queue_depth / (serving_workers * per_worker_capacity);
// above scale_up_ratio the pool grows by one, below scale_down_ratio for
// cooldown consecutive evaluations it removes one idle worker.
func (p *Pool) EvaluateScaling(ctx context.Context) {
	depth := p.queue.Depth()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	serving := p.servingLocked()

	// a drained pool with pending work always grows
	if serving == 0 {
		if depth > 0 && serving < p.cfg.MaxSize {
			p.scaleUpLocked(ctx, depth, 0)
		}
		return
	}

	ratio := float64(depth) / float64(serving*p.cfg.PerWorkerCapacity)

	switch {
	case ratio > p.cfg.ScaleUpRatio:
		p.lowStreak = 0
		if serving < p.cfg.MaxSize {
			p.scaleUpLocked(ctx, depth, ratio)
		}
	case ratio < p.cfg.ScaleDownRatio:
		p.lowStreak++
		if p.lowStreak >= p.cfg.ScaleDownCooldown && serving > p.cfg.MinSize {
			p.scaleDownLocked(ctx, ratio)
			p.lowStreak = 0
		}
	default:
		p.lowStreak = 0
	}
}

func (p *Pool) scaleUpLocked(ctx context.Context, depth int, ratio float64) {
	if _, err := p.spawnWorkerLocked(ctx, "general"); err != nil {
		logger.WarnCtx(ctx, "scale up failed: %v", err)
		return
	}
	p.scaleUpCount++
	p.targetSize = p.servingLocked()
	logger.InfoCtx(ctx, "scaled up, size: %d, queue_depth: %d, demand_ratio: %.2f",
		p.targetSize, depth, ratio)
}

// scaleDownLocked removes one idle worker; a pool with no idle worker
// keeps its size regardless of demand.
func (p *Pool) scaleDownLocked(ctx context.Context, ratio float64) {
	for id, worker := range p.workers {
		if worker.Status != model.WorkerStatusIdle {
			continue
		}
		p.removeWorkerLocked(id)
		p.scaleDownCount++
		p.targetSize = p.servingLocked()
		logger.InfoCtx(ctx, "scaled down, size: %d, demand_ratio: %.2f, worker_id: %s",
			p.targetSize, ratio, id)
		return
	}
}

// RestartStaleWorkers force-restarts every worker whose heartbeat exceeded
// the staleness window: the prior instance is marked OFFLINE, its slot is
// cancelled, and a replacement is spawned up to max_size. An instance
// already OFFLINE from a previous sweep is dropped.
func (p *Pool) RestartStaleWorkers(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	now := time.Now()
	staleAfter := time.Duration(p.cfg.StaleThreshold) * time.Second

	for id, worker := range p.workers {
		if worker.Status == model.WorkerStatusOffline {
			delete(p.workers, id)
			continue
		}
		if worker.HeartbeatAge(now) <= staleAfter {
			continue
		}

		worker.Status = model.WorkerStatusOffline
		worker.CurrentTaskID = ""
		if s, ok := p.slots[id]; ok {
			s.cancel()
			delete(p.slots, id)
		}
		p.restartCount++
		logger.WarnCtx(ctx, "stale worker restarted, worker_id: %s, heartbeat_age: %s",
			id, worker.HeartbeatAge(now))

		if p.servingLocked() < p.cfg.MaxSize {
			if _, err := p.spawnWorkerLocked(ctx, worker.Capability); err != nil {
				logger.WarnCtx(ctx, "replacement spawn failed: %v", err)
			}
		}
	}
}
