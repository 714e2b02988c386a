package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleetd/pkg/events"
	"fleetd/pkg/logger"
)

// Session tracks the retry history of one failing task
type Session struct {
	TaskID             string
	WorkerID           string
	Attempts           int
	MaxAttempts        int
	StartedAt          time.Time
	LastError          string
	LastFailureFixable bool
}

// Elapsed returns how long the task has been failing
func (s *Session) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return time.Since(s.StartedAt)
}

// Decision is the outcome of an escalation check
type Decision struct {
	Escalate bool
	Reason   string
}

// Manager decides when a failing task leaves the automatic retry loop.
// A task escalates once its retry budget is spent, or immediately when a
// failure is classified as not auto-fixable.
type Manager struct {
	mu          sync.Mutex
	maxAttempts int
	sessions    map[string]*Session
	bus         *events.Bus
}

// NewManager creates an escalation manager
func NewManager(maxAttempts int, bus *events.Bus) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Manager{
		maxAttempts: maxAttempts,
		sessions:    make(map[string]*Session),
		bus:         bus,
	}
}

// RecordFailure updates the session for a task failure and returns it
func (m *Manager) RecordFailure(taskID, workerID, errMsg string, fixable bool) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[taskID]
	if !ok {
		session = &Session{
			TaskID:      taskID,
			MaxAttempts: m.maxAttempts,
			StartedAt:   time.Now(),
		}
		m.sessions[taskID] = session
	}
	session.WorkerID = workerID
	session.Attempts++
	session.LastError = errMsg
	session.LastFailureFixable = fixable
	return session
}

// ShouldEscalate evaluates a session against the escalation policy
func (m *Manager) ShouldEscalate(session *Session) Decision {
	maxAttempts := session.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = m.maxAttempts
	}

	if session.Attempts >= maxAttempts {
		return Decision{
			Escalate: true,
			Reason:   fmt.Sprintf("retry budget exhausted after %d attempts", session.Attempts),
		}
	}
	if !session.LastFailureFixable {
		return Decision{
			Escalate: true,
			Reason:   fmt.Sprintf("failure not auto-fixable: %s", session.LastError),
		}
	}
	return Decision{}
}

// Escalate publishes the escalation event and closes the session
func (m *Manager) Escalate(ctx context.Context, session *Session, reason string) {
	m.mu.Lock()
	delete(m.sessions, session.TaskID)
	m.mu.Unlock()

	logger.WarnCtx(ctx, "task escalated, task_id: %s, worker_id: %s, attempts: %d, reason: %s",
		session.TaskID, session.WorkerID, session.Attempts, reason)

	if m.bus != nil {
		m.bus.Publish(ctx, events.NewEnvelope(session.TaskID, events.EscalationNeeded{
			TaskID:   session.TaskID,
			WorkerID: session.WorkerID,
			Reason:   reason,
			Attempts: session.Attempts,
		}))
	}
}

// Resolve drops the session for a task that eventually succeeded
func (m *Manager) Resolve(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, taskID)
}

// ActiveSessions returns the number of tasks currently in the retry loop
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
