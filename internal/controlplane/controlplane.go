package controlplane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleetd/internal/escalation"
	"fleetd/internal/model"
	"fleetd/internal/pool"
	"fleetd/pkg/config"
	"fleetd/pkg/events"
	"fleetd/pkg/health"
	"fleetd/pkg/interfaces"
	"fleetd/pkg/logger"
	"fleetd/pkg/metrics"
	"fleetd/pkg/profiler"

	"github.com/google/uuid"
)

// ControlPlane is the composition root for the worker fleet. It is an
// explicit instance constructed once at process start and passed by
// reference to every dependent; there is no ambient global state.
type ControlPlane struct {
	cfg *config.Config

	queue      interfaces.QueueProvider
	pool       *pool.Pool
	collector  *metrics.Collector
	escalation *escalation.Manager
	profiler   *profiler.Profiler
	thresholds *health.Thresholds
	bus        *events.Bus

	taskStore   interfaces.TaskStore
	workerStore interfaces.WorkerStore

	mu       sync.Mutex
	inflight map[string]*model.Task // submitted, not yet terminal

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Deps carries the external collaborators the control plane wires together
type Deps struct {
	Queue       interfaces.QueueProvider
	Executor    interfaces.TaskExecutor
	TaskStore   interfaces.TaskStore
	WorkerStore interfaces.WorkerStore
}

// New builds a control plane and all its owned components
func New(cfg *config.Config, deps Deps) *ControlPlane {
	bus := events.NewBus()

	return &ControlPlane{
		cfg:   cfg,
		queue: deps.Queue,
		pool: pool.NewPool(cfg.Pool, time.Duration(cfg.Queue.DequeueTimeout)*time.Second,
			deps.Queue, deps.Executor, bus),
		collector: metrics.NewCollector(
			metrics.WithWindowSize(cfg.Metrics.WindowSize),
			metrics.WithDepthWindowSize(cfg.Metrics.DepthWindowSize),
			metrics.WithTrendThreshold(cfg.Metrics.TrendThreshold),
		),
		escalation:  escalation.NewManager(cfg.Escalation.MaxAttempts, bus),
		profiler:    profiler.NewProfiler(cfg.Profiler),
		thresholds:  health.ThresholdsFromConfig(cfg.Health),
		bus:         bus,
		taskStore:   deps.TaskStore,
		workerStore: deps.WorkerStore,
		inflight:    make(map[string]*model.Task),
	}
}

// Start brings up the pool and the event dispatch loop
func (cp *ControlPlane) Start(ctx context.Context) error {
	cp.mu.Lock()
	if cp.started {
		cp.mu.Unlock()
		return fmt.Errorf("control plane already started")
	}
	cp.started = true
	cp.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	cp.cancel = cancel
	cp.done = make(chan struct{})

	// the dispatcher owns retry/escalation decisions; it must observe every
	// lifecycle event, so it gets the lossless subscription
	ch, unsubscribe := cp.bus.SubscribeLossless()
	go cp.dispatch(runCtx, ch, unsubscribe)

	if err := cp.pool.Start(runCtx); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "control plane started")
	return nil
}

// Stop shuts down the pool, the dispatcher and the profiler
func (cp *ControlPlane) Stop() {
	cp.mu.Lock()
	if !cp.started {
		cp.mu.Unlock()
		return
	}
	cp.started = false
	cp.mu.Unlock()

	cp.pool.Stop()
	cp.cancel()
	<-cp.done
	cp.profiler.Shutdown()
	cp.bus.Close()
}

// SubmitTask accepts a new unit of work, stores it and enqueues it
func (cp *ControlPlane) SubmitTask(ctx context.Context, req *model.SubmitRequest) (*model.Task, error) {
	profileID := cp.profiler.StartProfile(ctx, "submit_task", nil)
	defer cp.profiler.FinishProfile(profileID, nil)

	task := &model.Task{
		ID:       uuid.New().String(),
		Kind:     req.Kind,
		Priority: model.ParsePriority(req.Priority),
		Input:    req.Input,
	}

	if err := cp.queue.Enqueue(ctx, task); err != nil {
		return nil, err
	}

	cp.mu.Lock()
	cp.inflight[task.ID] = task
	cp.mu.Unlock()

	if cp.taskStore != nil {
		if err := cp.taskStore.Put(ctx, task); err != nil {
			logger.WarnCtx(ctx, "task store put failed, task_id: %s, error: %v", task.ID, err)
		}
	}

	cp.bus.Publish(ctx, events.NewEnvelope(task.ID, events.TaskQueued{
		TaskID:   task.ID,
		Priority: task.Priority.String(),
		Depth:    cp.queue.Depth(),
	}))
	logger.InfoCtx(ctx, "task submitted, task_id: %s, kind: %s, priority: %s",
		task.ID, task.Kind, task.Priority.String())
	return task, nil
}

// CancelTask removes a still-queued task
func (cp *ControlPlane) CancelTask(ctx context.Context, taskID string) error {
	if err := cp.queue.CancelTask(ctx, taskID); err != nil {
		return err
	}
	cp.mu.Lock()
	delete(cp.inflight, taskID)
	cp.mu.Unlock()
	return nil
}

// GetTask returns a task by id, preferring the live in-flight record
func (cp *ControlPlane) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	cp.mu.Lock()
	task, ok := cp.inflight[taskID]
	cp.mu.Unlock()
	if ok {
		copied := *task
		return &copied, nil
	}
	if cp.taskStore == nil {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	return cp.taskStore.Get(ctx, taskID)
}

// QueryTasks returns stored task records matching the filter
func (cp *ControlPlane) QueryTasks(ctx context.Context, filter interfaces.TaskFilter) ([]*model.Task, error) {
	if cp.taskStore == nil {
		return nil, nil
	}
	return cp.taskStore.Query(ctx, filter)
}

// GetStatus returns the composite queue and pool read used by dashboards
func (cp *ControlPlane) GetStatus() model.Status {
	return model.Status{
		Queue: cp.queue.Metrics(),
		Pool:  cp.pool.Snapshot(),
	}
}

// GetMetricsSnapshot computes the current metrics snapshot
func (cp *ControlPlane) GetMetricsSnapshot() *metrics.PoolMetricsSnapshot {
	snap := cp.pool.Snapshot()
	return cp.collector.GetMetrics(snap.Size, snap.ActiveWorkers, cp.queue.Depth())
}

// AssessHealth evaluates the current snapshot against configured thresholds
func (cp *ControlPlane) AssessHealth() *health.Report {
	return health.AssessHealth(cp.GetMetricsSnapshot(), cp.thresholds)
}

// Subscribe registers an external read-only observer on the event bus
func (cp *ControlPlane) Subscribe() (<-chan events.Envelope, func()) {
	return cp.bus.Subscribe()
}

// Pool exposes the worker pool for registration and scaling jobs
func (cp *ControlPlane) Pool() *pool.Pool {
	return cp.pool
}

// Collector exposes the metrics collector for ingestion jobs
func (cp *ControlPlane) Collector() *metrics.Collector {
	return cp.collector
}

// Profiler exposes the profiling API
func (cp *ControlPlane) Profiler() *profiler.Profiler {
	return cp.profiler
}

// QueueDepth returns the current queue depth
func (cp *ControlPlane) QueueDepth() int {
	return cp.queue.Depth()
}
