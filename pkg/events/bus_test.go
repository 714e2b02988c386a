package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	env := NewEnvelope("task-1", TaskQueued{TaskID: "task-1", Priority: "high", Depth: 1})
	bus.Publish(context.Background(), env)

	for _, ch := range []<-chan Envelope{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, KindTaskQueued, got.Kind)
			assert.Equal(t, "task-1", got.CorrelationID)
			payload, ok := got.Payload.(TaskQueued)
			require.True(t, ok)
			assert.Equal(t, 1, payload.Depth)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestCancelledSubscriberStopsReceiving(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	// channel is closed, publish must not panic
	bus.Publish(context.Background(), NewEnvelope("task-1", TaskStarted{TaskID: "task-1"}))

	_, open := <-ch
	assert.False(t, open)
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	// never read; publishing past the buffer must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultSubscriberBuffer+10; i++ {
			bus.Publish(context.Background(), NewEnvelope("task-1", TaskStarted{TaskID: "task-1"}))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, int64(10), bus.Dropped())
}

func TestLosslessSubscriberSeesEveryEvent(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.SubscribeLossless()
	defer cancel()

	// publish far past any channel buffer before reading a single event;
	// nothing may be dropped and publish must not block
	total := defaultSubscriberBuffer * 4
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			bus.Publish(context.Background(), NewEnvelope("task-1", TaskFailed{TaskID: "task-1", RetryCount: i}))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("publish blocked on a lossless subscriber")
	}

	for i := 0; i < total; i++ {
		select {
		case env := <-ch:
			payload, ok := env.Payload.(TaskFailed)
			require.True(t, ok)
			// publish order is preserved
			assert.Equal(t, i, payload.RetryCount)
		case <-time.After(time.Second):
			t.Fatalf("lossless subscriber lost event %d of %d", i, total)
		}
	}
	assert.Equal(t, int64(0), bus.Dropped())
}

func TestLosslessCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.SubscribeLossless()
	bus.Publish(context.Background(), NewEnvelope("task-1", TaskStarted{TaskID: "task-1"}))
	cancel()
	cancel() // idempotent

	// publish after cancel must not panic or deliver
	bus.Publish(context.Background(), NewEnvelope("task-2", TaskStarted{TaskID: "task-2"}))

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("lossless channel not closed after cancel")
		}
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe()

	bus.Close()
	bus.Publish(context.Background(), NewEnvelope("task-1", TaskStarted{TaskID: "task-1"}))

	_, open := <-ch
	assert.False(t, open)

	// closing twice is safe
	bus.Close()
}

func TestEnvelopeCarriesKindFromPayload(t *testing.T) {
	env := NewEnvelope("worker-1", WorkerRegistered{WorkerID: "worker-1", Capability: "gpu", PoolSize: 2})
	assert.Equal(t, KindWorkerRegistered, env.Kind)
	assert.NotEmpty(t, env.ID)
	assert.False(t, env.Timestamp.IsZero())
}
