package controlplane

import (
	"context"
	"testing"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/config"
	"fleetd/pkg/events"
	"fleetd/pkg/health"
	"fleetd/pkg/interfaces"
	"fleetd/pkg/queue/memory"
	memorystore "fleetd/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Pool.MinSize = 1
	cfg.Pool.MaxSize = 3
	cfg.Pool.HeartbeatInterval = 1
	cfg.Queue.DequeueTimeout = 1
	cfg.Escalation.MaxAttempts = 2
	return cfg
}

func newStartedControlPlane(t *testing.T, executor interfaces.TaskExecutor) *ControlPlane {
	t.Helper()

	cp := New(testConfig(), Deps{
		Queue:       memory.NewQueue(),
		Executor:    executor,
		TaskStore:   memorystore.NewTaskStore(),
		WorkerStore: memorystore.NewWorkerStore(),
	})
	require.NoError(t, cp.Start(context.Background()))
	t.Cleanup(cp.Stop)
	return cp
}

func waitForEvent(t *testing.T, ch <-chan events.Envelope, kind events.Kind) events.Envelope {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case env := <-ch:
			if env.Kind == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestSubmitAndComplete(t *testing.T) {
	executor := interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		return &model.ExecutionResult{Status: model.ResultCompleted, DurationMs: 5}
	})
	cp := newStartedControlPlane(t, executor)

	ch, cancel := cp.Subscribe()
	defer cancel()

	task, err := cp.SubmitTask(context.Background(), &model.SubmitRequest{
		Kind:     "echo",
		Priority: "high",
		Input:    map[string]interface{}{"payload": "hi"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	waitForEvent(t, ch, events.KindTaskCompleted)

	// the dispatcher archives the terminal phase in the store
	require.Eventually(t, func() bool {
		stored, err := cp.GetTask(context.Background(), task.ID)
		return err == nil && stored.Phase == model.PhaseCompleted
	}, 3*time.Second, 20*time.Millisecond)

	snap := cp.GetMetricsSnapshot()
	assert.Equal(t, int64(1), snap.TotalProcessed)
	assert.Equal(t, int64(1), snap.TotalSucceeded)
}

func TestRetryThenEscalate(t *testing.T) {
	executor := interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		return &model.ExecutionResult{Status: model.ResultFailed, Error: "flaky", Fixable: true, DurationMs: 5}
	})
	cp := newStartedControlPlane(t, executor)

	ch, cancel := cp.Subscribe()
	defer cancel()

	task, err := cp.SubmitTask(context.Background(), &model.SubmitRequest{Kind: "echo"})
	require.NoError(t, err)

	env := waitForEvent(t, ch, events.KindEscalationNeeded)
	payload, ok := env.Payload.(events.EscalationNeeded)
	require.True(t, ok)
	assert.Equal(t, task.ID, payload.TaskID)
	assert.Equal(t, 2, payload.Attempts)
	assert.Contains(t, payload.Reason, "retry budget exhausted")

	require.Eventually(t, func() bool {
		stored, err := cp.GetTask(context.Background(), task.ID)
		return err == nil && stored.Phase == model.PhaseEscalated
	}, 3*time.Second, 20*time.Millisecond)
}

func TestNonFixableEscalatesImmediately(t *testing.T) {
	executor := interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		return &model.ExecutionResult{Status: model.ResultFailed, Error: "bad input", Fixable: false}
	})
	cp := newStartedControlPlane(t, executor)

	ch, cancel := cp.Subscribe()
	defer cancel()

	_, err := cp.SubmitTask(context.Background(), &model.SubmitRequest{Kind: "echo"})
	require.NoError(t, err)

	env := waitForEvent(t, ch, events.KindEscalationNeeded)
	payload := env.Payload.(events.EscalationNeeded)
	assert.Equal(t, 1, payload.Attempts)
	assert.Contains(t, payload.Reason, "not auto-fixable")
}

// slowTaskStore delays every Update so the dispatcher falls far behind the
// worker slots publishing events.
type slowTaskStore struct {
	*memorystore.TaskStore
	delay time.Duration
}

func (s *slowTaskStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	time.Sleep(s.delay)
	return s.TaskStore.Update(ctx, id, fields)
}

func TestDispatcherBacklogLosesNoTask(t *testing.T) {
	executor := interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		return &model.ExecutionResult{Status: model.ResultFailed, Error: "bad input", Fixable: false, DurationMs: 1}
	})

	store := &slowTaskStore{TaskStore: memorystore.NewTaskStore(), delay: 3 * time.Millisecond}
	cfg := testConfig()
	cfg.Pool.MinSize = 2
	cp := New(cfg, Deps{
		Queue:       memory.NewQueue(),
		Executor:    executor,
		TaskStore:   store,
		WorkerStore: memorystore.NewWorkerStore(),
	})
	require.NoError(t, cp.Start(context.Background()))
	t.Cleanup(cp.Stop)

	// well past any subscriber buffer once the per-task lifecycle events fan out
	const total = 100
	ids := make([]string, 0, total)
	for i := 0; i < total; i++ {
		task, err := cp.SubmitTask(context.Background(), &model.SubmitRequest{Kind: "echo"})
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	// every failed task must leave the loop as ESCALATED; a task stuck
	// in-flight means its failure event was lost
	require.Eventually(t, func() bool {
		for _, id := range ids {
			stored, err := cp.GetTask(context.Background(), id)
			if err != nil || stored.Phase != model.PhaseEscalated {
				return false
			}
		}
		return true
	}, 30*time.Second, 100*time.Millisecond)
}

func TestGetStatus(t *testing.T) {
	cp := newStartedControlPlane(t, interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		return &model.ExecutionResult{Status: model.ResultCompleted}
	}))

	status := cp.GetStatus()
	assert.Equal(t, 1, status.Pool.Size)
	assert.Equal(t, 0, status.Queue.Depth)
}

func TestAssessHealthOnIdlePlane(t *testing.T) {
	cp := newStartedControlPlane(t, interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		return &model.ExecutionResult{Status: model.ResultCompleted}
	}))

	report := cp.AssessHealth()
	assert.Equal(t, health.StatusHealthy, report.Status)
}

func TestGetTaskUnknown(t *testing.T) {
	cp := newStartedControlPlane(t, interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		return &model.ExecutionResult{Status: model.ResultCompleted}
	}))

	_, err := cp.GetTask(context.Background(), "no-such-task")
	assert.Error(t, err)
}
