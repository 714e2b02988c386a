package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(id string, priority model.TaskPriority) *model.Task {
	return &model.Task{ID: id, Kind: "echo", Priority: priority}
}

func TestStrictPriorityOrder(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, task("low-1", model.PriorityLow)))
	require.NoError(t, q.Enqueue(ctx, task("normal-1", model.PriorityNormal)))
	require.NoError(t, q.Enqueue(ctx, task("high-1", model.PriorityHigh)))
	require.NoError(t, q.Enqueue(ctx, task("high-2", model.PriorityHigh)))

	var order []string
	for i := 0; i < 4; i++ {
		got, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, got)
		order = append(order, got.ID)
	}

	assert.Equal(t, []string{"high-1", "high-2", "normal-1", "low-1"}, order)
}

func TestFIFOWithinPriorityClass(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, task(fmt.Sprintf("task-%d", i), model.PriorityNormal)))
	}

	for i := 0; i < 5; i++ {
		got, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("task-%d", i), got.ID)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	q := NewQueue(WithCapacity(2))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, task("a", model.PriorityNormal)))
	require.NoError(t, q.Enqueue(ctx, task("b", model.PriorityNormal)))

	err := q.Enqueue(ctx, task("c", model.PriorityNormal))
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrQueueFull))

	// the rejected task was never admitted
	assert.Equal(t, 2, q.Depth())
	assert.Equal(t, int64(1), q.Metrics().RejectedTotal)
}

func TestDequeueTimeoutReturnsNil(t *testing.T) {
	q := NewQueue()

	start := time.Now()
	got, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDequeueContextCancelled(t *testing.T) {
	q := NewQueue()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := q.Dequeue(ctx, time.Second)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDequeueWakesBlockedWaiter(t *testing.T) {
	q := NewQueue()

	done := make(chan *model.Task, 1)
	go func() {
		got, _ := q.Dequeue(context.Background(), 3*time.Second)
		done <- got
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), task("late", model.PriorityNormal)))

	select {
	case got := <-done:
		require.NotNil(t, got)
		assert.Equal(t, "late", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestEnqueueSetsQueuedPhaseOnce(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	fresh := task("fresh", model.PriorityNormal)
	require.NoError(t, q.Enqueue(ctx, fresh))
	assert.Equal(t, model.PhaseQueued, fresh.Phase)

	// a retried task keeps its ASSIGNED phase through requeue
	retried := task("retried", model.PriorityNormal)
	retried.Phase = model.PhaseInProgress
	retried.MarkRetried("boom")
	require.NoError(t, q.Enqueue(ctx, retried))
	assert.Equal(t, model.PhaseAssigned, retried.Phase)
	assert.Equal(t, 1, retried.RetryCount)
}

func TestRequeuedTaskGetsFreshWaitClock(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	first := task("retry-me", model.PriorityNormal)
	require.NoError(t, q.Enqueue(ctx, first))
	firstEnqueue := first.EnqueuedAt

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)

	// simulate a slow failed attempt before the requeue
	time.Sleep(30 * time.Millisecond)
	got.MarkRetried("boom")
	require.NoError(t, q.Enqueue(ctx, got))

	// the wait clock restarts; the failed execution time is not queue wait
	assert.True(t, got.EnqueuedAt.After(firstEnqueue))
	assert.Less(t, time.Since(got.EnqueuedAt), 30*time.Millisecond)
}

func TestMetricsAccounting(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, task("a", model.PriorityHigh)))
	require.NoError(t, q.Enqueue(ctx, task("b", model.PriorityLow)))

	m := q.Metrics()
	assert.Equal(t, 2, m.Depth)
	assert.Equal(t, 1, m.DepthByPriority["high"])
	assert.Equal(t, 1, m.DepthByPriority["low"])
	assert.Equal(t, int64(2), m.EnqueuedTotal)

	_, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	m = q.Metrics()
	assert.Equal(t, 1, m.Depth)
	assert.Equal(t, int64(1), m.DequeuedTotal)
	assert.GreaterOrEqual(t, m.AvgWaitMs, 0.0)
}

func TestCancelTask(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, task("a", model.PriorityNormal)))
	require.NoError(t, q.Enqueue(ctx, task("b", model.PriorityNormal)))

	require.NoError(t, q.CancelTask(ctx, "a"))
	assert.Equal(t, 1, q.Depth())

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)

	// cancelling an unknown task is not an error
	assert.NoError(t, q.CancelTask(ctx, "missing"))
}
