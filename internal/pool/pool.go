package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/config"
	"fleetd/pkg/events"
	"fleetd/pkg/interfaces"
	"fleetd/pkg/logger"

	"github.com/google/uuid"
)

// Pool owns the fleet of worker slots. Workers run as goroutines that pull
// tasks from the queue and report outcomes on the event bus; they touch pool
// state only through the methods here, under a single mutex.
type Pool struct {
	mu sync.Mutex

	cfg            config.PoolConfig
	dequeueTimeout time.Duration

	queue    interfaces.TaskQueue
	executor interfaces.TaskExecutor
	bus      *events.Bus

	workers map[string]*model.Worker
	slots   map[string]*slot

	targetSize     int
	scaleUpCount   int64
	scaleDownCount int64
	restartCount   int64
	lowStreak      int // consecutive low-demand evaluations

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewPool creates a worker pool
func NewPool(cfg config.PoolConfig, dequeueTimeout time.Duration, queue interfaces.TaskQueue, executor interfaces.TaskExecutor, bus *events.Bus) *Pool {
	return &Pool{
		cfg:            cfg,
		dequeueTimeout: dequeueTimeout,
		queue:          queue,
		executor:       executor,
		bus:            bus,
		workers:        make(map[string]*model.Worker),
		slots:          make(map[string]*slot),
		targetSize:     cfg.MinSize,
	}
}

// Start spawns the minimum worker set
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("pool already started")
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.MinSize; i++ {
		if _, err := p.spawnWorkerLocked(ctx, "general"); err != nil {
			return err
		}
	}
	logger.InfoCtx(ctx, "worker pool started, size: %d, max: %d", len(p.slots), p.cfg.MaxSize)
	return nil
}

// Stop cancels every worker slot and waits for them to exit
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// RegisterWorker adds one worker to the fleet and starts its slot
func (p *Pool) RegisterWorker(ctx context.Context, capability string) (*model.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil, fmt.Errorf("pool not started")
	}
	return p.spawnWorkerLocked(ctx, capability)
}

// spawnWorkerLocked creates the worker record and its slot goroutine
func (p *Pool) spawnWorkerLocked(ctx context.Context, capability string) (*model.Worker, error) {
	if p.servingLocked() >= p.cfg.MaxSize {
		return nil, fmt.Errorf("pool at max size %d", p.cfg.MaxSize)
	}

	now := time.Now()
	worker := &model.Worker{
		ID:            uuid.New().String(),
		Capability:    capability,
		Status:        model.WorkerStatusIdle,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	p.workers[worker.ID] = worker

	slotCtx, slotCancel := context.WithCancel(p.ctx)
	s := &slot{workerID: worker.ID, cancel: slotCancel}
	p.slots[worker.ID] = s

	p.wg.Add(2)
	go p.runSlot(slotCtx, worker.ID)
	go p.runHeartbeat(slotCtx, worker.ID)

	p.bus.Publish(ctx, events.NewEnvelope(worker.ID, events.WorkerRegistered{
		WorkerID:   worker.ID,
		Capability: capability,
		PoolSize:   p.servingLocked(),
	}))
	logger.InfoCtx(ctx, "worker registered, worker_id: %s, capability: %s", worker.ID, capability)
	return worker, nil
}

// DeregisterWorker removes a worker and stops its slot
func (p *Pool) DeregisterWorker(ctx context.Context, workerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workers[workerID]; !ok {
		return fmt.Errorf("worker not found: %s", workerID)
	}
	p.removeWorkerLocked(workerID)
	logger.InfoCtx(ctx, "worker deregistered, worker_id: %s", workerID)
	return nil
}

func (p *Pool) removeWorkerLocked(workerID string) {
	if s, ok := p.slots[workerID]; ok {
		s.cancel()
		delete(p.slots, workerID)
	}
	delete(p.workers, workerID)
}

// Heartbeat records a liveness signal. Updates are last-writer-wins per
// worker id; a worker that resumes signaling from ERROR moves back to IDLE.
// A worker whose slot was already torn down by the staleness sweep is
// refused: its replacement holds the capacity now, and reviving the record
// would leave a worker that counts toward the pool but dequeues nothing.
func (p *Pool) Heartbeat(ctx context.Context, workerID string) error {
	p.mu.Lock()
	worker, ok := p.workers[workerID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("worker not found: %s", workerID)
	}
	if _, ok := p.slots[workerID]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("worker restarted, no longer serving: %s", workerID)
	}

	worker.LastHeartbeat = time.Now()
	if worker.Status == model.WorkerStatusError {
		worker.Status = model.WorkerStatusIdle
	}
	status := string(worker.Status)
	currentTask := worker.CurrentTaskID
	p.mu.Unlock()

	p.bus.Publish(ctx, events.NewEnvelope(workerID, events.WorkerHeartbeat{
		WorkerID:      workerID,
		Status:        status,
		CurrentTaskID: currentTask,
	}))
	return nil
}

// GetWorker returns a copy of a worker record
func (p *Pool) GetWorker(workerID string) (*model.Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	worker, ok := p.workers[workerID]
	if !ok {
		return nil, false
	}
	copied := *worker
	return &copied, true
}

// Workers returns a point-in-time copy of all worker records
func (p *Pool) Workers() []*model.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*model.Worker, 0, len(p.workers))
	for _, worker := range p.workers {
		copied := *worker
		out = append(out, &copied)
	}
	return out
}

// IncrementEscalations bumps a worker's escalation counter
func (p *Pool) IncrementEscalations(workerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if worker, ok := p.workers[workerID]; ok {
		worker.Escalations++
	}
}

// markWorking flags a worker as executing a task
func (p *Pool) markWorking(workerID, taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if worker, ok := p.workers[workerID]; ok {
		worker.Status = model.WorkerStatusWorking
		worker.CurrentTaskID = taskID
	}
}

// markIdle returns a worker to IDLE after a successful attempt
func (p *Pool) markIdle(workerID string, retried bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if worker, ok := p.workers[workerID]; ok {
		worker.Status = model.WorkerStatusIdle
		worker.CurrentTaskID = ""
		worker.TasksCompleted++
		if retried {
			worker.TasksFixed++
		}
	}
}

// markError flags a failed attempt; the next heartbeat moves the worker
// back to IDLE as long as it keeps signaling.
func (p *Pool) markError(workerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if worker, ok := p.workers[workerID]; ok {
		worker.Status = model.WorkerStatusError
		worker.CurrentTaskID = ""
	}
}

// servingLocked counts workers that can take work (everything but OFFLINE)
func (p *Pool) servingLocked() int {
	n := 0
	for _, worker := range p.workers {
		if worker.Status != model.WorkerStatusOffline {
			n++
		}
	}
	return n
}

func (p *Pool) countLocked(status model.WorkerStatus) int {
	n := 0
	for _, worker := range p.workers {
		if worker.Status == status {
			n++
		}
	}
	return n
}

// ActiveWorkers returns the number of workers currently executing a task
func (p *Pool) ActiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countLocked(model.WorkerStatusWorking)
}

// Size returns the number of serving workers
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.servingLocked()
}

// Snapshot returns point-in-time pool accounting
func (p *Pool) Snapshot() model.PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	serving := p.servingLocked()
	working := p.countLocked(model.WorkerStatusWorking)

	utilization := 0.0
	if serving > 0 {
		utilization = float64(working) / float64(serving) * 100
	}

	return model.PoolMetrics{
		Size:           serving,
		TargetSize:     p.targetSize,
		MinSize:        p.cfg.MinSize,
		MaxSize:        p.cfg.MaxSize,
		IdleWorkers:    p.countLocked(model.WorkerStatusIdle) + p.countLocked(model.WorkerStatusError),
		ActiveWorkers:  working,
		OfflineWorkers: p.countLocked(model.WorkerStatusOffline),
		UtilizationPct: utilization,
		ScaleUpCount:   p.scaleUpCount,
		ScaleDownCount: p.scaleDownCount,
		RestartCount:   p.restartCount,
	}
}
