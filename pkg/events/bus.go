package events

import (
	"context"
	"sync"
	"sync/atomic"

	"fleetd/pkg/logger"
)

const defaultSubscriberBuffer = 256

// Bus is an in-process publish/subscribe channel for lifecycle events.
// Publishing never blocks. Plain subscribers (external observers) get a
// bounded channel and lose events when they fall behind; lossless
// subscribers (the control plane's own dispatch loop) get an unbounded
// queue so no event is ever dropped on them.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Envelope
	lossless    map[int]*losslessSub
	nextID      int
	closed      bool
	dropped     atomic.Int64
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[int]chan Envelope),
		lossless:    make(map[int]*losslessSub),
	}
}

// losslessSub buffers envelopes in an unbounded queue and pumps them to the
// consumer channel in publish order.
type losslessSub struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Envelope
	closed bool

	out  chan Envelope
	done chan struct{}
	once sync.Once
}

func newLosslessSub() *losslessSub {
	s := &losslessSub{
		out:  make(chan Envelope),
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *losslessSub) push(env Envelope) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, env)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *losslessSub) close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		s.cond.Signal()
		s.mu.Unlock()
	})
}

func (s *losslessSub) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			close(s.out)
			return
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, env := range batch {
			select {
			case s.out <- env:
			case <-s.done:
				// consumer is gone, abandon the remainder
				close(s.out)
				return
			}
		}
	}
}

// Subscribe registers a new read-only observer. The returned cancel function
// removes the subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Envelope, defaultSubscriberBuffer)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SubscribeLossless registers a consumer that must observe every published
// event. Events queue without bound while the consumer is behind, so this is
// reserved for internal consumers that are guaranteed to drain; external
// observers use Subscribe.
func (b *Bus) SubscribeLossless() (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := newLosslessSub()
	b.lossless[id] = sub
	go sub.pump()

	cancel := func() {
		b.mu.Lock()
		sub, ok := b.lossless[id]
		if ok {
			delete(b.lossless, id)
		}
		b.mu.Unlock()
		if ok {
			sub.close()
		}
	}
	return sub.out, cancel
}

// Publish delivers an envelope to all current subscribers
func (b *Bus) Publish(ctx context.Context, env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.lossless {
		sub.push(env)
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- env:
		default:
			b.dropped.Add(1)
			logger.WarnCtx(ctx, "event bus subscriber full, dropping event, kind: %s, correlation_id: %s",
				env.Kind, env.CorrelationID)
		}
	}
}

// Dropped returns the number of events dropped due to slow subscribers
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close shuts the bus down and closes all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.lossless {
		delete(b.lossless, id)
		sub.close()
	}
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
