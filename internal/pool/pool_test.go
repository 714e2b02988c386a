package pool

import (
	"context"
	"testing"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/config"
	"fleetd/pkg/events"
	"fleetd/pkg/interfaces"
	"fleetd/pkg/queue/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		MinSize:           1,
		MaxSize:           3,
		PerWorkerCapacity: 1,
		ScaleUpRatio:      1.0,
		ScaleDownRatio:    0.25,
		ScaleDownCooldown: 2,
		HeartbeatInterval: 1,
		StaleThreshold:    30,
	}
}

func noopExecutor() interfaces.TaskExecutor {
	return interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		return &model.ExecutionResult{Status: model.ResultCompleted, DurationMs: 1}
	})
}

func newStartedPool(t *testing.T, cfg config.PoolConfig, executor interfaces.TaskExecutor) (*Pool, *memory.Queue, *events.Bus) {
	t.Helper()

	q := memory.NewQueue()
	bus := events.NewBus()
	p := NewPool(cfg, 50*time.Millisecond, q, executor, bus)
	require.NoError(t, p.Start(context.Background()))

	t.Cleanup(func() {
		p.Stop()
		bus.Close()
	})
	return p, q, bus
}

func TestStartSpawnsMinimumWorkers(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MinSize = 2

	p, _, _ := newStartedPool(t, cfg, noopExecutor())
	assert.Equal(t, 2, p.Size())

	snap := p.Snapshot()
	assert.Equal(t, 2, snap.Size)
	assert.Equal(t, 2, snap.IdleWorkers)
	assert.Equal(t, 0, snap.ActiveWorkers)
}

func TestRegisterWorkerRespectsMaxSize(t *testing.T) {
	p, _, _ := newStartedPool(t, testPoolConfig(), noopExecutor())

	_, err := p.RegisterWorker(context.Background(), "gpu")
	require.NoError(t, err)
	_, err = p.RegisterWorker(context.Background(), "gpu")
	require.NoError(t, err)

	_, err = p.RegisterWorker(context.Background(), "gpu")
	assert.Error(t, err)
	assert.Equal(t, 3, p.Size())
}

func TestDeregisterWorker(t *testing.T) {
	p, _, _ := newStartedPool(t, testPoolConfig(), noopExecutor())

	worker, err := p.RegisterWorker(context.Background(), "gpu")
	require.NoError(t, err)

	require.NoError(t, p.DeregisterWorker(context.Background(), worker.ID))
	assert.Equal(t, 1, p.Size())

	assert.Error(t, p.DeregisterWorker(context.Background(), worker.ID))
}

func TestWorkerExecutesTask(t *testing.T) {
	_, q, bus := newStartedPool(t, testPoolConfig(), noopExecutor())

	ch, cancel := bus.Subscribe()
	defer cancel()

	task := &model.Task{ID: "task-1", Kind: "echo", Priority: model.PriorityNormal}
	require.NoError(t, q.Enqueue(context.Background(), task))

	seen := make(map[events.Kind]bool)
	deadline := time.After(3 * time.Second)
	for !seen[events.KindTaskCompleted] {
		select {
		case env := <-ch:
			seen[env.Kind] = true
		case <-deadline:
			t.Fatalf("timed out, saw: %v", seen)
		}
	}

	assert.True(t, seen[events.KindTaskAssigned])
	assert.True(t, seen[events.KindTaskStarted])
	assert.Equal(t, model.PhaseCompleted, task.Phase)
}

func TestWorkerPublishesFailure(t *testing.T) {
	executor := interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		return &model.ExecutionResult{Status: model.ResultFailed, Error: "boom", Fixable: true}
	})
	_, q, bus := newStartedPool(t, testPoolConfig(), executor)

	ch, cancel := bus.Subscribe()
	defer cancel()

	task := &model.Task{ID: "task-1", Kind: "echo", Priority: model.PriorityNormal}
	require.NoError(t, q.Enqueue(context.Background(), task))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-ch:
			if env.Kind != events.KindTaskFailed {
				continue
			}
			payload, ok := env.Payload.(events.TaskFailed)
			require.True(t, ok)
			assert.Equal(t, "boom", payload.Error)
			assert.True(t, payload.Fixable)
			return
		case <-deadline:
			t.Fatal("expected failed event")
		}
	}
}

func TestHeartbeatRecoversErrorWorker(t *testing.T) {
	p, _, _ := newStartedPool(t, testPoolConfig(), noopExecutor())

	worker, err := p.RegisterWorker(context.Background(), "gpu")
	require.NoError(t, err)

	p.markError(worker.ID)
	got, ok := p.GetWorker(worker.ID)
	require.True(t, ok)
	assert.Equal(t, model.WorkerStatusError, got.Status)

	require.NoError(t, p.Heartbeat(context.Background(), worker.ID))
	got, _ = p.GetWorker(worker.ID)
	assert.Equal(t, model.WorkerStatusIdle, got.Status)
}

func TestHeartbeatUnknownWorker(t *testing.T) {
	p, _, _ := newStartedPool(t, testPoolConfig(), noopExecutor())
	assert.Error(t, p.Heartbeat(context.Background(), "no-such-worker"))
}

func TestEvaluateScalingUp(t *testing.T) {
	block := make(chan struct{})
	executor := interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		<-block
		return &model.ExecutionResult{Status: model.ResultCompleted}
	})
	defer close(block)

	p, q, _ := newStartedPool(t, testPoolConfig(), executor)

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(context.Background(), &model.Task{ID: string(rune('a' + i)), Kind: "echo"}))
	}

	p.EvaluateScaling(context.Background())
	assert.Equal(t, 2, p.Size())

	p.EvaluateScaling(context.Background())
	p.EvaluateScaling(context.Background())
	// capped at max size
	assert.Equal(t, 3, p.Size())

	snap := p.Snapshot()
	assert.Equal(t, int64(2), snap.ScaleUpCount)
}

func TestEvaluateScalingDownNeedsCooldown(t *testing.T) {
	p, _, _ := newStartedPool(t, testPoolConfig(), noopExecutor())

	_, err := p.RegisterWorker(context.Background(), "gpu")
	require.NoError(t, err)
	require.Equal(t, 2, p.Size())

	// first low-demand evaluation only arms the cooldown
	p.EvaluateScaling(context.Background())
	assert.Equal(t, 2, p.Size())

	p.EvaluateScaling(context.Background())
	assert.Equal(t, 1, p.Size())

	// never shrinks below min size
	p.EvaluateScaling(context.Background())
	p.EvaluateScaling(context.Background())
	assert.Equal(t, 1, p.Size())

	snap := p.Snapshot()
	assert.Equal(t, int64(1), snap.ScaleDownCount)
}

func TestRestartStaleWorkers(t *testing.T) {
	cfg := testPoolConfig()
	cfg.HeartbeatInterval = 60 // keep slot heartbeats out of the way
	cfg.StaleThreshold = 1

	p, _, _ := newStartedPool(t, cfg, noopExecutor())
	require.Equal(t, 1, p.Size())

	time.Sleep(1200 * time.Millisecond)
	p.RestartStaleWorkers(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, int64(1), snap.RestartCount)
	assert.Equal(t, 1, snap.OfflineWorkers)
	// a replacement was spawned for the stale worker
	assert.Equal(t, 1, snap.Size)

	// the offline record is dropped on the next sweep
	p.RestartStaleWorkers(context.Background())
	snap = p.Snapshot()
	assert.Equal(t, 0, snap.OfflineWorkers)
	assert.Equal(t, int64(1), snap.RestartCount)
}

func TestHeartbeatRefusedAfterRestart(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MaxSize = 2
	cfg.HeartbeatInterval = 60
	cfg.StaleThreshold = 1

	p, _, _ := newStartedPool(t, cfg, noopExecutor())

	var staleID string
	for _, w := range p.Workers() {
		staleID = w.ID
	}
	require.NotEmpty(t, staleID)

	time.Sleep(1200 * time.Millisecond)
	p.RestartStaleWorkers(context.Background())

	// the restarted worker's slot is gone; a late heartbeat must not revive
	// it into a serving record with nothing dequeuing for it
	assert.Error(t, p.Heartbeat(context.Background(), staleID))

	got, ok := p.GetWorker(staleID)
	require.True(t, ok)
	assert.Equal(t, model.WorkerStatusOffline, got.Status)

	// only the replacement counts toward capacity
	assert.Equal(t, 1, p.Size())
	_, err := p.RegisterWorker(context.Background(), "gpu")
	assert.NoError(t, err)
}
