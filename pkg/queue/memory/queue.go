package memory

import (
	"context"
	"sync"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/interfaces"
)

// Queue is the in-process priority task queue.
// Strict priority across classes (a low task is never dequeued while a high
// task is pending), FIFO within a class. A single mutex guards the class
// slices; dequeue waiters park on a signal channel with a bounded timer so
// waits are never indefinite.
type Queue struct {
	mu       sync.Mutex
	classes  [3][]*model.Task // indexed by model.TaskPriority
	capacity int              // 0 means unbounded
	notify   chan struct{}

	waitWindow []float64 // trailing dequeue wait samples (ms)
	waitSize   int
	waitNext   int
	waitCount  int

	enqueued int64
	dequeued int64
	rejected int64
	closed   bool
}

// Option configures a Queue
type Option func(*Queue)

// WithCapacity bounds the total number of queued tasks
func WithCapacity(n int) Option {
	return func(q *Queue) { q.capacity = n }
}

// WithWaitWindow sets the trailing window used for average wait time
func WithWaitWindow(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.waitSize = n
			q.waitWindow = make([]float64, n)
		}
	}
}

// NewQueue creates an in-memory priority queue
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		notify:     make(chan struct{}, 1),
		waitSize:   100,
		waitWindow: make([]float64, 100),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a task to its priority class.
// Fails with ErrQueueFull when the configured capacity is reached; the
// caller must back off, the task is never silently dropped.
func (q *Queue) Enqueue(ctx context.Context, task *model.Task) error {
	q.mu.Lock()

	if q.capacity > 0 && q.depthLocked() >= q.capacity {
		q.rejected++
		q.mu.Unlock()
		return interfaces.ErrQueueFull
	}

	if task.Phase == "" {
		task.Phase = model.PhaseQueued
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	prio := task.Priority
	if prio < model.PriorityLow || prio > model.PriorityHigh {
		prio = model.PriorityNormal
		task.Priority = prio
	}
	q.classes[prio] = append(q.classes[prio], task)
	q.enqueued++
	q.mu.Unlock()

	q.signal()
	return nil
}

// Dequeue returns the highest-priority, oldest-enqueued task, suspending the
// caller until one is available or the timeout elapses. Returns (nil, nil)
// on timeout; (nil, ctx.Err()) when the context ends first.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*model.Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if task := q.pop(); task != nil {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.notify:
			// re-check; another waiter may have taken the task
		}
	}
}

// pop removes and returns the next eligible task, or nil when empty
func (q *Queue) pop() *model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for prio := model.PriorityHigh; prio >= model.PriorityLow; prio-- {
		items := q.classes[prio]
		if len(items) == 0 {
			continue
		}
		task := items[0]
		q.classes[prio] = items[1:]
		q.dequeued++
		q.recordWaitLocked(time.Since(task.EnqueuedAt))

		// more work pending, wake the next waiter
		if q.depthLocked() > 0 {
			select {
			case q.notify <- struct{}{}:
			default:
			}
		}
		return task
	}
	return nil
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) depthLocked() int {
	return len(q.classes[model.PriorityHigh]) + len(q.classes[model.PriorityNormal]) + len(q.classes[model.PriorityLow])
}

func (q *Queue) recordWaitLocked(wait time.Duration) {
	q.waitWindow[q.waitNext] = float64(wait.Milliseconds())
	q.waitNext = (q.waitNext + 1) % q.waitSize
	if q.waitCount < q.waitSize {
		q.waitCount++
	}
}

// Depth returns the current total queue depth
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

// Metrics returns point-in-time queue accounting
func (q *Queue) Metrics() model.QueueMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	avgWait := 0.0
	if q.waitCount > 0 {
		sum := 0.0
		for i := 0; i < q.waitCount; i++ {
			sum += q.waitWindow[i]
		}
		avgWait = sum / float64(q.waitCount)
	}

	return model.QueueMetrics{
		Depth: q.depthLocked(),
		DepthByPriority: map[string]int{
			model.PriorityHigh.String():   len(q.classes[model.PriorityHigh]),
			model.PriorityNormal.String(): len(q.classes[model.PriorityNormal]),
			model.PriorityLow.String():    len(q.classes[model.PriorityLow]),
		},
		Capacity:      q.capacity,
		AvgWaitMs:     avgWait,
		EnqueuedTotal: q.enqueued,
		DequeuedTotal: q.dequeued,
		RejectedTotal: q.rejected,
	}
}

// CancelTask removes a pending task by id. Returns nil whether or not the
// task was still queued; an in-flight task cannot be cancelled here.
func (q *Queue) CancelTask(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for prio := model.PriorityHigh; prio >= model.PriorityLow; prio-- {
		items := q.classes[prio]
		for i, task := range items {
			if task.ID == taskID {
				q.classes[prio] = append(items[:i:i], items[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

// Close releases queue resources
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
